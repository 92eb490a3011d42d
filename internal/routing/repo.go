package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// Repository manages persistence for vendor routings and responses plus the
// catalog reads scored selection needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Buyer, error)
	ListActiveSellers(ctx context.Context) ([]models.Seller, error)
	ListStockForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.StockRecord, error)
	CreateRouting(ctx context.Context, routing *models.VendorRouting) error
	GetRouting(ctx context.Context, id uuid.UUID) (*models.VendorRouting, error)
	GetRoutingByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorRouting, error)
	CreateResponse(ctx context.Context, response *models.VendorResponse) error
	ClaimWinner(ctx context.Context, routingID, sellerID uuid.UUID, at time.Time) (bool, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorRouting, error)
	MarkExpired(ctx context.Context, routingID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a routing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).Where("id = ?", buyerID).First(&buyer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) ListActiveSellers(ctx context.Context) ([]models.Seller, error) {
	var sellers []models.Seller
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&sellers).Error
	if err != nil {
		return nil, err
	}
	return sellers, nil
}

func (r *repository) ListStockForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.StockRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var records []models.StockRecord
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) CreateRouting(ctx context.Context, routing *models.VendorRouting) error {
	return r.db.WithContext(ctx).Create(routing).Error
}

func (r *repository) GetRouting(ctx context.Context, id uuid.UUID) (*models.VendorRouting, error) {
	var routing models.VendorRouting
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&routing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &routing, nil
}

func (r *repository) GetRoutingByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorRouting, error) {
	var routing models.VendorRouting
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&routing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &routing, nil
}

func (r *repository) CreateResponse(ctx context.Context, response *models.VendorResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

// ClaimWinner is the single write that resolves the acceptance race. The
// status guard in the WHERE clause means at most one caller ever sees one
// row affected, no matter how many race.
func (r *repository) ClaimWinner(ctx context.Context, routingID, sellerID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorRouting{}).
		Where("id = ? AND status = ?", routingID, enums.RoutingStatusPendingResponses).
		Updates(map[string]any{
			"winner_id":   sellerID,
			"status":      enums.RoutingStatusVendorAccepted,
			"accepted_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorRouting, error) {
	var routings []models.VendorRouting
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.RoutingStatusPendingResponses, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&routings).Error; err != nil {
		return nil, err
	}
	return routings, nil
}

// MarkExpired uses the same CAS discipline as ClaimWinner so an acceptance
// that lands between the sweep's read and write wins the row.
func (r *repository) MarkExpired(ctx context.Context, routingID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorRouting{}).
		Where("id = ? AND status = ?", routingID, enums.RoutingStatusPendingResponses).
		Updates(map[string]any{
			"status":     enums.RoutingStatusExpired,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
