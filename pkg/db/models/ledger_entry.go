package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// LedgerEntry is an immutable financial record on a (buyer, seller) credit
// line. BalanceAfterCents chains: entry n's balance equals entry n-1's
// balance plus the signed amount.
type LedgerEntry struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index:idx_ledger_entries_account"`
	SellerID          uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index:idx_ledger_entries_account"`
	OrderID           *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	EntryType         enums.LedgerEntryType `gorm:"column:entry_type;type:ledger_entry_type_enum;not null"`
	AmountCents       int64                 `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                 `gorm:"column:balance_after_cents;not null"`
	ReversedEntryID   *uuid.UUID            `gorm:"column:reversed_entry_id;type:uuid;uniqueIndex:ux_ledger_entries_reversal"`
	Reason            *string               `gorm:"column:reason"`
	DueDate           *time.Time            `gorm:"column:due_date"`
	CreatedBy         enums.LedgerActor     `gorm:"column:created_by;type:ledger_actor_enum;not null;default:'system'"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}
