package orders

import (
	"testing"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

func TestTransitionTableCoversEveryStatus(t *testing.T) {
	statuses := enums.OrderStatuses()
	for _, status := range statuses {
		if _, ok := transitionTable[status]; !ok {
			t.Fatalf("no transition entry for %s", status)
		}
	}
	if len(transitionTable) != len(statuses) {
		t.Fatalf("table has %d entries, enum has %d", len(transitionTable), len(statuses))
	}
}

func TestTerminalStatesHaveNoTargets(t *testing.T) {
	terminals := []enums.OrderStatus{
		enums.OrderStatusFulfilled,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	}
	for _, status := range terminals {
		if targets := AllowedTargets(status); len(targets) != 0 {
			t.Fatalf("%s allows %v, want nothing", status, targets)
		}
		if !status.IsTerminal() {
			t.Fatalf("%s not marked terminal", status)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
		want bool
	}{
		{enums.OrderStatusCreated, enums.OrderStatusValidated, true},
		{enums.OrderStatusValidated, enums.OrderStatusCreditReserved, true},
		{enums.OrderStatusCreditReserved, enums.OrderStatusVendorNotified, true},
		{enums.OrderStatusVendorNotified, enums.OrderStatusVendorAccepted, true},
		{enums.OrderStatusVendorNotified, enums.OrderStatusVendorRejected, true},
		{enums.OrderStatusVendorAccepted, enums.OrderStatusFulfilled, true},
		{enums.OrderStatusVendorRejected, enums.OrderStatusCancelled, true},
		{enums.OrderStatusCreated, enums.OrderStatusCancelled, true},
		{enums.OrderStatusValidated, enums.OrderStatusFailed, true},

		// Skipping states is never legal.
		{enums.OrderStatusCreated, enums.OrderStatusCreditReserved, false},
		{enums.OrderStatusValidated, enums.OrderStatusVendorNotified, false},
		{enums.OrderStatusVendorNotified, enums.OrderStatusFulfilled, false},
		{enums.OrderStatusCreated, enums.OrderStatusFulfilled, false},
		// No edges out of terminals.
		{enums.OrderStatusFulfilled, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCancelled, enums.OrderStatusCreated, false},
		{enums.OrderStatusFailed, enums.OrderStatusValidated, false},
		// Backwards edges.
		{enums.OrderStatusCreditReserved, enums.OrderStatusValidated, false},
		{enums.OrderStatusVendorRejected, enums.OrderStatusVendorNotified, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
