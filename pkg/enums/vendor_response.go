package enums

import "fmt"

// VendorResponseKind is a candidate seller's answer to a broadcast.
type VendorResponseKind string

const (
	VendorResponseAccepted VendorResponseKind = "accepted"
	VendorResponseRejected VendorResponseKind = "rejected"
)

// IsValid reports whether the value is a known VendorResponseKind.
func (r VendorResponseKind) IsValid() bool {
	return r == VendorResponseAccepted || r == VendorResponseRejected
}

// ParseVendorResponseKind converts raw input into a VendorResponseKind.
func ParseVendorResponseKind(value string) (VendorResponseKind, error) {
	switch VendorResponseKind(value) {
	case VendorResponseAccepted:
		return VendorResponseAccepted, nil
	case VendorResponseRejected:
		return VendorResponseRejected, nil
	}
	return "", fmt.Errorf("invalid vendor response %q", value)
}
