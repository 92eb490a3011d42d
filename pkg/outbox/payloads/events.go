package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// OrderCreatedEvent signals a newly submitted order awaiting validation.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	TotalValueCents int64     `json:"total_value_cents"`
}

// OrderStateChangedEvent is emitted on every successful status transition.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SellerID   *uuid.UUID        `json:"seller_id,omitempty"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Reason     string            `json:"reason,omitempty"`
}

// OrderCancelledEvent is emitted when an order reaches CANCELLED.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderFulfilledEvent surfaces the final quantities when fulfillment completes.
type OrderFulfilledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	BuyerID       uuid.UUID         `json:"buyer_id"`
	SellerID      uuid.UUID         `json:"seller_id"`
	FulfilledAt   time.Time         `json:"fulfilled_at"`
	FulfilledQtys map[uuid.UUID]int `json:"fulfilled_qtys"`
}

// CreditReservedEvent records a debit placed against a buyer/seller credit line.
type CreditReservedEvent struct {
	EntryID     uuid.UUID `json:"entry_id"`
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	AmountCents int64     `json:"amount_cents"`
	DueDate     time.Time `json:"due_date"`
}

// CreditReleasedEvent records a reversal of a prior debit.
type CreditReleasedEvent struct {
	EntryID         uuid.UUID `json:"entry_id"`
	ReversedEntryID uuid.UUID `json:"reversed_entry_id"`
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	AmountCents     int64     `json:"amount_cents"`
}

// PaymentRecordedEvent records an incoming payment credit.
type PaymentRecordedEvent struct {
	EntryID     uuid.UUID `json:"entry_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	AmountCents int64     `json:"amount_cents"`
}

// ReservationReleasedEvent is emitted when reserved stock is returned.
type ReservationReleasedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int       `json:"quantity"`
}

// VendorBroadcastEvent tells downstream systems to notify candidate sellers.
type VendorBroadcastEvent struct {
	RoutingID          uuid.UUID   `json:"routing_id"`
	OrderID            uuid.UUID   `json:"order_id"`
	BuyerID            uuid.UUID   `json:"buyer_id"`
	CandidateSellerIDs []uuid.UUID `json:"candidate_seller_ids"`
	ExpiresAt          time.Time   `json:"expires_at"`
}

// VendorWinnerConfirmedEvent is emitted once exactly one seller wins the race.
type VendorWinnerConfirmedEvent struct {
	RoutingID  uuid.UUID `json:"routing_id"`
	OrderID    uuid.UUID `json:"order_id"`
	WinnerID   uuid.UUID `json:"winner_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// VendorRoutingCancelledEvent notifies losing sellers the order is taken.
type VendorRoutingCancelledEvent struct {
	RoutingID uuid.UUID `json:"routing_id"`
	OrderID   uuid.UUID `json:"order_id"`
	SellerID  uuid.UUID `json:"seller_id"`
}

// VendorRoutingExpiredEvent is emitted when no seller accepts in time.
type VendorRoutingExpiredEvent struct {
	RoutingID uuid.UUID `json:"routing_id"`
	OrderID   uuid.UUID `json:"order_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
