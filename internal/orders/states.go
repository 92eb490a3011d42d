package orders

import "github.com/orderstack/fulfillment-core/pkg/enums"

// transitionTable is the full set of legal edges. Terminal states are states
// with an empty target set, not a special case anywhere else.
var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {
		enums.OrderStatusValidated,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusValidated: {
		enums.OrderStatusCreditReserved,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusCreditReserved: {
		enums.OrderStatusVendorNotified,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusVendorNotified: {
		enums.OrderStatusVendorAccepted,
		enums.OrderStatusVendorRejected,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusVendorAccepted: {
		enums.OrderStatusFulfilled,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusVendorRejected: {
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusFulfilled: {},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusFailed:    {},
}

// CanTransition reports whether the edge from current to target is legal.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, allowed := range transitionTable[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal targets from the given state.
func AllowedTargets(current enums.OrderStatus) []enums.OrderStatus {
	targets := transitionTable[current]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}
