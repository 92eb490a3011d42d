package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// StockReservation is created atomically with a reserved_stock increment and
// is released or deducted exactly once.
type StockReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID  uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int                     `gorm:"column:quantity;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:reservation_status_enum;not null;default:'active'"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
