package enums

import "fmt"

// RoutingStatus tracks a vendor broadcast from fan-out to resolution.
type RoutingStatus string

const (
	RoutingStatusPendingResponses RoutingStatus = "pending_responses"
	RoutingStatusVendorAccepted   RoutingStatus = "vendor_accepted"
	RoutingStatusExpired          RoutingStatus = "expired"
)

var validRoutingStatuses = []RoutingStatus{
	RoutingStatusPendingResponses,
	RoutingStatusVendorAccepted,
	RoutingStatusExpired,
}

// IsValid reports whether the value is a known RoutingStatus.
func (s RoutingStatus) IsValid() bool {
	for _, candidate := range validRoutingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRoutingStatus converts raw input into a RoutingStatus.
func ParseRoutingStatus(value string) (RoutingStatus, error) {
	for _, candidate := range validRoutingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid routing status %q", value)
}
