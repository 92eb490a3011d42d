package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/metrics"
	"github.com/orderstack/fulfillment-core/pkg/outbox"
	"github.com/orderstack/fulfillment-core/pkg/outbox/payloads"
)

// Request is one line item of a reservation attempt.
type Request struct {
	ProductID uuid.UUID
	Quantity  int
}

// Availability is the derived stock position of one (seller, product).
type Availability struct {
	SellerID  uuid.UUID `json:"seller_id"`
	ProductID uuid.UUID `json:"product_id"`
	Physical  int       `json:"physical"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}

// Service defines the inventory admission operations. The mutating methods
// are transaction-scoped: all line items of one order reserve atomically or
// not at all, because a failed guard rolls the caller's transaction back.
type Service interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, orderID, sellerID uuid.UUID, requests []Request) ([]models.StockReservation, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error
	ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.StockReservation, error)
	DeductTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, actualQty *int) error
	DeductOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actualQtys map[uuid.UUID]int) ([]models.StockReservation, error)
	Availability(ctx context.Context, sellerID, productID uuid.UUID) (*Availability, error)
}

type service struct {
	repo    Repository
	outbox  *outbox.Service
	metrics *metrics.AdmissionMetrics
}

// NewService wires the inventory reservation service.
func NewService(repo Repository, ob *outbox.Service, m *metrics.AdmissionMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo, outbox: ob, metrics: m}, nil
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, orderID, sellerID uuid.UUID, requests []Request) ([]models.StockReservation, error) {
	if orderID == uuid.Nil || sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and seller id are required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if req.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}

	repo := s.repo.WithTx(tx)
	reservations := make([]models.StockReservation, 0, len(requests))
	for _, req := range requests {
		ok, err := repo.IncrementReserved(ctx, sellerID, req.ProductID, req.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserving stock")
		}
		if !ok {
			s.observeStock("insufficient_stock")
			record, lookupErr := repo.GetRecord(ctx, sellerID, req.ProductID)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "loading stock record")
			}
			if record == nil {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("no stock record for product %s", req.ProductID))
			}
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("requested %d, available %d for product %s", req.Quantity, record.Available(), req.ProductID))
		}

		reservation := models.StockReservation{
			OrderID:   orderID,
			SellerID:  sellerID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Status:    enums.ReservationStatusActive,
		}
		if err := repo.CreateReservation(ctx, &reservation); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating stock reservation")
		}
		reservations = append(reservations, reservation)
	}

	s.observeStock("granted")
	return reservations, nil
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	repo := s.repo.WithTx(tx)
	reservation, err := repo.GetReservation(ctx, reservationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading stock reservation")
	}
	if reservation == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock reservation not found")
	}

	ok, err := repo.TransitionReservation(ctx, reservationID, enums.ReservationStatusActive, enums.ReservationStatusReleased)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "releasing stock reservation")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("reservation already %s", reservation.Status))
	}

	ok, err = repo.DecrementReserved(ctx, reservation.SellerID, reservation.ProductID, reservation.Quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing reserved stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below reservation quantity")
	}

	if s.outbox != nil {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Data: payloads.ReservationReleasedEvent{
				ReservationID: reservation.ID,
				OrderID:       reservation.OrderID,
				SellerID:      reservation.SellerID,
				ProductID:     reservation.ProductID,
				Quantity:      reservation.Quantity,
			},
		})
	}
	return nil
}

// ReleaseOrderTx releases every active reservation the order holds. Used by
// cancellation and failure transitions so no stock is left dangling.
func (s *service) ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.StockReservation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	repo := s.repo.WithTx(tx)
	active, err := repo.ListActiveByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing active reservations")
	}
	for _, reservation := range active {
		if err := s.ReleaseTx(ctx, tx, reservation.ID); err != nil {
			return nil, err
		}
	}
	return active, nil
}

// DeductTx converts a reservation into a physical deduction. A nil actualQty
// deducts the full reserved quantity; a smaller actualQty deducts that much
// and releases the remainder (partial fulfillment).
func (s *service) DeductTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, actualQty *int) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	repo := s.repo.WithTx(tx)
	reservation, err := repo.GetReservation(ctx, reservationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading stock reservation")
	}
	if reservation == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock reservation not found")
	}

	actual := reservation.Quantity
	if actualQty != nil {
		if *actualQty < 0 || *actualQty > reservation.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("actual quantity %d outside reserved quantity %d", *actualQty, reservation.Quantity))
		}
		actual = *actualQty
	}

	ok, err := repo.TransitionReservation(ctx, reservationID, enums.ReservationStatusActive, enums.ReservationStatusDeducted)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deducting stock reservation")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("reservation already %s", reservation.Status))
	}

	if actual > 0 {
		ok, err = repo.DeductStock(ctx, reservation.SellerID, reservation.ProductID, actual)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deducting physical stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "stock counters below deduction quantity")
		}
	}
	if remainder := reservation.Quantity - actual; remainder > 0 {
		ok, err = repo.DecrementReserved(ctx, reservation.SellerID, reservation.ProductID, remainder)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "releasing reservation remainder")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below reservation remainder")
		}
	}
	return nil
}

// DeductOrderTx deducts every active reservation of the order. actualQtys
// optionally overrides the deducted quantity per product id.
func (s *service) DeductOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actualQtys map[uuid.UUID]int) ([]models.StockReservation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	repo := s.repo.WithTx(tx)
	active, err := repo.ListActiveByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing active reservations")
	}
	for _, reservation := range active {
		var actual *int
		if qty, ok := actualQtys[reservation.ProductID]; ok {
			q := qty
			actual = &q
		}
		if err := s.DeductTx(ctx, tx, reservation.ID, actual); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func (s *service) Availability(ctx context.Context, sellerID, productID uuid.UUID) (*Availability, error) {
	if sellerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id and product id are required")
	}
	record, err := s.repo.GetRecord(ctx, sellerID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading stock record")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found")
	}
	return &Availability{
		SellerID:  sellerID,
		ProductID: productID,
		Physical:  record.PhysicalStock,
		Reserved:  record.ReservedStock,
		Available: record.Available(),
	}, nil
}

func (s *service) observeStock(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveStock(outcome)
	}
}
