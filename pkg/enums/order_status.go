package enums

import "fmt"

// OrderStatus is the order state machine's current node.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "created"
	OrderStatusValidated      OrderStatus = "validated"
	OrderStatusCreditReserved OrderStatus = "credit_reserved"
	OrderStatusVendorNotified OrderStatus = "vendor_notified"
	OrderStatusVendorAccepted OrderStatus = "vendor_accepted"
	OrderStatusVendorRejected OrderStatus = "vendor_rejected"
	OrderStatusFulfilled      OrderStatus = "fulfilled"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusFailed         OrderStatus = "failed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusValidated,
	OrderStatusCreditReserved,
	OrderStatusVendorNotified,
	OrderStatusVendorAccepted,
	OrderStatusVendorRejected,
	OrderStatusFulfilled,
	OrderStatusCancelled,
	OrderStatusFailed,
}

// OrderStatuses returns every known status.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFulfilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
