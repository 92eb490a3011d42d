package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// Order is the buyer's commitment being driven through the state machine.
// SellerID stays nil until vendor assignment resolves.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID         *uuid.UUID        `gorm:"column:seller_id;type:uuid"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'created'"`
	TotalAmountCents int64             `gorm:"column:total_amount_cents;not null"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is one product line on an order.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64     `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
