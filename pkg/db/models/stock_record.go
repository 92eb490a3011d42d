package models

import (
	"time"

	"github.com/google/uuid"
)

// StockRecord tracks physical and reserved counts per (seller, product).
// Invariant: 0 <= reserved_stock <= physical_stock; available is the
// difference and is never stored.
type StockRecord struct {
	SellerID       uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	PhysicalStock  int       `gorm:"column:physical_stock;not null;default:0"`
	ReservedStock  int       `gorm:"column:reserved_stock;not null;default:0"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the sellable quantity not promised to in-flight orders.
func (s StockRecord) Available() int {
	return s.PhysicalStock - s.ReservedStock
}
