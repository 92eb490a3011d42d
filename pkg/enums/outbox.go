package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateRouting     OutboxAggregateType = "vendor_routing"
	AggregateLedgerEntry OutboxAggregateType = "ledger_entry"
	AggregateReservation OutboxAggregateType = "stock_reservation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateRouting,
	AggregateLedgerEntry,
	AggregateReservation,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderStateChanged      OutboxEventType = "order_state_changed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventOrderFulfilled         OutboxEventType = "order_fulfilled"
	EventCreditReserved         OutboxEventType = "credit_reserved"
	EventCreditReleased         OutboxEventType = "credit_released"
	EventPaymentRecorded        OutboxEventType = "payment_recorded"
	EventReservationReleased    OutboxEventType = "reservation_released"
	EventVendorBroadcast        OutboxEventType = "vendor_broadcast"
	EventVendorWinnerConfirmed  OutboxEventType = "vendor_winner_confirmed"
	EventVendorRoutingCancelled OutboxEventType = "vendor_routing_cancelled"
	EventVendorRoutingExpired   OutboxEventType = "vendor_routing_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventOrderCancelled,
	EventOrderFulfilled,
	EventCreditReserved,
	EventCreditReleased,
	EventPaymentRecorded,
	EventReservationReleased,
	EventVendorBroadcast,
	EventVendorWinnerConfirmed,
	EventVendorRoutingCancelled,
	EventVendorRoutingExpired,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
