package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// Repository manages persistence for stock records and reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetRecord(ctx context.Context, sellerID, productID uuid.UUID) (*models.StockRecord, error)
	IncrementReserved(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error)
	DecrementReserved(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error)
	DeductStock(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error)
	CreateReservation(ctx context.Context, reservation *models.StockReservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error)
	ListActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetRecord(ctx context.Context, sellerID, productID uuid.UUID) (*models.StockRecord, error) {
	var record models.StockRecord
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND product_id = ?", sellerID, productID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// IncrementReserved is the admission gate: the guard on available stock sits
// in the WHERE clause, so concurrent reservations against the same record
// serialize on the row and over-reservation reports zero rows affected.
func (r *repository) IncrementReserved(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockRecord{}).
		Where("seller_id = ? AND product_id = ?", sellerID, productID).
		Where("physical_stock - reserved_stock >= ?", qty).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock + ?", qty),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DecrementReserved(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockRecord{}).
		Where("seller_id = ? AND product_id = ?", sellerID, productID).
		Where("reserved_stock >= ?", qty).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeductStock(ctx context.Context, sellerID, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockRecord{}).
		Where("seller_id = ? AND product_id = ?", sellerID, productID).
		Where("reserved_stock >= ? AND physical_stock >= ?", qty, qty).
		Updates(map[string]any{
			"physical_stock": gorm.Expr("physical_stock - ?", qty),
			"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetReservation(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// TransitionReservation moves a reservation between statuses with a CAS so a
// reservation is released or deducted exactly once.
func (r *repository) TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusActive).
		Order("created_at ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
