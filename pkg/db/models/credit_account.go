package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditAccount is the per-(buyer, seller) credit line. The outstanding
// balance is never stored here; it is always derived from ledger_entries.
// lock_owner/lock_expires_at implement the short row lease taken by the
// admission engine before it reads the derived balance.
type CreditAccount struct {
	BuyerID            uuid.UUID  `gorm:"column:buyer_id;type:uuid;primaryKey"`
	SellerID           uuid.UUID  `gorm:"column:seller_id;type:uuid;primaryKey"`
	CreditLimitCents   int64      `gorm:"column:credit_limit_cents;not null"`
	MaxOrderValueCents int64      `gorm:"column:max_order_value_cents;not null;default:0"`
	MaxOutstandingDays int        `gorm:"column:max_outstanding_days;not null;default:30"`
	Blocked            bool       `gorm:"column:blocked;not null;default:false"`
	LockOwner          *string    `gorm:"column:lock_owner"`
	LockExpiresAt      *time.Time `gorm:"column:lock_expires_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
