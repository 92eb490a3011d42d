package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/db/models"
)

// Repository manages persistence for credit accounts and ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetAccount(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.CreditAccount, error)
	AcquireLease(ctx context.Context, buyerID, sellerID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, buyerID, sellerID uuid.UUID, owner string) error
	UsedCredit(ctx context.Context, buyerID, sellerID uuid.UUID) (int64, error)
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindReversal(ctx context.Context, reversedEntryID uuid.UUID) (*models.LedgerEntry, error)
	OutstandingDebits(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetAccount(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND seller_id = ?", buyerID, sellerID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// AcquireLease claims the account row lease via a conditional update. The
// claim succeeds only when the lease is free or its TTL has lapsed, so two
// concurrent admission attempts can never both hold it.
func (r *repository) AcquireLease(ctx context.Context, buyerID, sellerID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.CreditAccount{}).
		Where("buyer_id = ? AND seller_id = ?", buyerID, sellerID).
		Where("lock_owner IS NULL OR lock_expires_at < ? OR lock_owner = ?", now, owner).
		Updates(map[string]any{
			"lock_owner":      owner,
			"lock_expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseLease(ctx context.Context, buyerID, sellerID uuid.UUID, owner string) error {
	return r.db.WithContext(ctx).
		Model(&models.CreditAccount{}).
		Where("buyer_id = ? AND seller_id = ? AND lock_owner = ?", buyerID, sellerID, owner).
		Updates(map[string]any{
			"lock_owner":      nil,
			"lock_expires_at": nil,
		}).Error
}

// UsedCredit derives the outstanding balance from the ledger. The balance is
// never cached on the account row.
func (r *repository) UsedCredit(ctx context.Context, buyerID, sellerID uuid.UUID) (int64, error) {
	var used int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select(`COALESCE(SUM(CASE
			WHEN entry_type = 'debit' THEN amount_cents
			WHEN entry_type IN ('credit', 'reversal') THEN -amount_cents
			WHEN entry_type = 'adjustment' THEN amount_cents
			ELSE 0 END), 0)`).
		Where("buyer_id = ? AND seller_id = ?", buyerID, sellerID).
		Scan(&used).Error
	return used, err
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) GetEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindReversal(ctx context.Context, reversedEntryID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reversed_entry_id = ?", reversedEntryID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// OutstandingDebits returns the order's debit entries that have not been
// reversed yet.
func (r *repository) OutstandingDebits(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND entry_type = 'debit'", orderID).
		Where("id NOT IN (?)", r.db.
			Model(&models.LedgerEntry{}).
			Select("reversed_entry_id").
			Where("order_id = ? AND reversed_entry_id IS NOT NULL", orderID)).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
