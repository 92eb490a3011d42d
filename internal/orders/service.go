package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/internal/credit"
	"github.com/orderstack/fulfillment-core/internal/inventory"
	"github.com/orderstack/fulfillment-core/internal/routing"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
	"github.com/orderstack/fulfillment-core/pkg/outbox"
	"github.com/orderstack/fulfillment-core/pkg/outbox/payloads"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubmitItem is one product line of a submission.
type SubmitItem struct {
	ProductID      uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

// SubmitInput creates a new order in CREATED.
type SubmitInput struct {
	BuyerID uuid.UUID
	Items   []SubmitItem
}

// TransitionInput drives one state machine step.
type TransitionInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	PerformedBy string
	Reason      string
	// ActualQtys optionally overrides deducted quantities per product on the
	// FULFILLED transition (partial fulfillment).
	ActualQtys map[uuid.UUID]int
}

// Service is the order state machine: every transition validates the edge,
// runs the target's side effects, updates the order, and appends the audit
// event as one atomic unit.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

type service struct {
	repo      Repository
	tx        TxRunner
	credit    credit.Engine
	inventory inventory.Service
	routing   routing.Service
	outbox    *outbox.Service
	logg      *logger.Logger
}

// NewService wires the order state machine with its three engines.
func NewService(
	repo Repository,
	tx TxRunner,
	creditEngine credit.Engine,
	inventorySvc inventory.Service,
	routingSvc routing.Service,
	ob *outbox.Service,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if creditEngine == nil {
		return nil, fmt.Errorf("credit engine required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if routingSvc == nil {
		return nil, fmt.Errorf("routing service required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		credit:    creditEngine,
		inventory: inventorySvc,
		routing:   routingSvc,
		outbox:    ob,
		logg:      logg,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	var total int64
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if item.UnitPriceCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
		}
		lineTotal := item.UnitPriceCents * int64(item.Quantity)
		total += lineTotal
		items = append(items, models.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     lineTotal,
		})
	}

	order := &models.Order{
		BuyerID:          input.BuyerID,
		Status:           enums.OrderStatusCreated,
		TotalAmountCents: total,
		Items:            items,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}
		if s.outbox != nil {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: payloads.OrderCreatedEvent{
					OrderID:         order.ID,
					BuyerID:         order.BuyerID,
					TotalValueCents: order.TotalAmountCents,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Transition performs one edge of the state machine atomically: the CAS on
// the order row, the target state's side effects, and the audit event either
// all commit or all roll back.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.PerformedBy == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "performed_by is required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown target state %q", input.Target))
	}

	order, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	current := order.Status
	if !CanTransition(current, input.Target) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("transition %s -> %s is not allowed", current, input.Target))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// One in-flight transition per order: the previously observed state
		// must still hold.
		moved, err := repo.TransitionStatus(ctx, input.OrderID, current, input.Target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "order state changed concurrently")
		}

		if err := s.applySideEffects(ctx, tx, repo, order, input); err != nil {
			return err
		}

		event := &models.OrderEvent{
			OrderID:     order.ID,
			FromState:   current,
			ToState:     input.Target,
			PerformedBy: input.PerformedBy,
		}
		if input.Reason != "" {
			reason := input.Reason
			event.Reason = &reason
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending order event")
		}

		return s.emitTransitionEvents(ctx, tx, order, current, input)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
	}
	return updated, nil
}

func (s *service) applySideEffects(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, input TransitionInput) error {
	switch input.Target {
	case enums.OrderStatusValidated:
		return s.assignSellerIfUnset(ctx, repo, order)

	case enums.OrderStatusCreditReserved:
		if order.SellerID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no assigned seller")
		}
		_, err := s.credit.ReserveTx(ctx, tx, credit.ReserveInput{
			BuyerID:     order.BuyerID,
			SellerID:    *order.SellerID,
			OrderID:     order.ID,
			AmountCents: order.TotalAmountCents,
		})
		return err

	case enums.OrderStatusVendorNotified:
		// Broadcast fan-out is driven through the routing service; the
		// transition itself only records that notification happened.
		return nil

	case enums.OrderStatusVendorAccepted:
		return s.applyVendorAccepted(ctx, tx, repo, order)

	case enums.OrderStatusVendorRejected:
		return nil

	case enums.OrderStatusFulfilled:
		reserved, err := repo.HasPassedThrough(ctx, order.ID, enums.OrderStatusCreditReserved)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking credit reservation history")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeCreditNotReserved,
				"order was never credit reserved")
		}
		_, err = s.inventory.DeductOrderTx(ctx, tx, order.ID, input.ActualQtys)
		return err

	case enums.OrderStatusCancelled, enums.OrderStatusFailed:
		if _, err := s.inventory.ReleaseOrderTx(ctx, tx, order.ID); err != nil {
			return err
		}
		_, err := s.credit.ReleaseOrderDebitsTx(ctx, tx, order.ID, string(input.Target))
		return err
	}
	return nil
}

// assignSellerIfUnset runs scored selection when the order has no seller yet.
func (s *service) assignSellerIfUnset(ctx context.Context, repo Repository, order *models.Order) error {
	if order.SellerID != nil {
		return nil
	}
	items := make([]routing.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, routing.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	sellerID, err := s.routing.SelectBestSeller(ctx, order.BuyerID, items)
	if err != nil {
		return err
	}
	if err := repo.SetSeller(ctx, order.ID, sellerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning seller")
	}
	order.SellerID = &sellerID
	return nil
}

// applyVendorAccepted reserves stock against the accepting seller. When the
// broadcast race produced a winner different from the seller the credit was
// reserved against, the old debit is reversed and a new one taken against
// the winner in the same transaction.
func (s *service) applyVendorAccepted(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	sellerID, err := s.resolveAcceptedSeller(ctx, order)
	if err != nil {
		return err
	}

	if order.SellerID == nil || *order.SellerID != sellerID {
		if _, err := s.credit.ReleaseOrderDebitsTx(ctx, tx, order.ID, "seller reassigned by broadcast race"); err != nil {
			return err
		}
		if _, err := s.credit.ReserveTx(ctx, tx, credit.ReserveInput{
			BuyerID:     order.BuyerID,
			SellerID:    sellerID,
			OrderID:     order.ID,
			AmountCents: order.TotalAmountCents,
		}); err != nil {
			return err
		}
		if err := repo.SetSeller(ctx, order.ID, sellerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reassigning seller")
		}
		order.SellerID = &sellerID
	}

	requests := make([]inventory.Request, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, inventory.Request{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	_, err = s.inventory.ReserveTx(ctx, tx, order.ID, sellerID, requests)
	return err
}

// resolveAcceptedSeller prefers the broadcast race winner when a routing
// exists; otherwise the pre-assigned seller stands.
func (s *service) resolveAcceptedSeller(ctx context.Context, order *models.Order) (uuid.UUID, error) {
	rt, err := s.routing.GetByOrder(ctx, order.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if order.SellerID == nil {
				return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no assigned seller")
			}
			return *order.SellerID, nil
		}
		return uuid.Nil, err
	}
	if rt.WinnerID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "routing has no winner yet")
	}
	return *rt.WinnerID, nil
}

func (s *service) emitTransitionEvents(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, input TransitionInput) error {
	if s.outbox == nil {
		return nil
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStateChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			SellerID:   order.SellerID,
			FromStatus: from,
			ToStatus:   input.Target,
			Reason:     input.Reason,
		},
	})
	if err != nil {
		return err
	}

	switch input.Target {
	case enums.OrderStatusCancelled:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				CancelledAt: time.Now(),
				Reason:      input.Reason,
			},
		})
	case enums.OrderStatusFulfilled:
		var sellerID uuid.UUID
		if order.SellerID != nil {
			sellerID = *order.SellerID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFulfilledEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				SellerID:      sellerID,
				FulfilledAt:   time.Now(),
				FulfilledQtys: input.ActualQtys,
			},
		})
	}
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	events, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing order events")
	}
	return events, nil
}
