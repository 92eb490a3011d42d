package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// OrderEvent is the append-only audit record for one state transition. The
// event log, not the order row, is the source of truth for "has this order
// ever passed through state X".
type OrderEvent struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromState   enums.OrderStatus `gorm:"column:from_state;type:order_status_enum;not null"`
	ToState     enums.OrderStatus `gorm:"column:to_state;type:order_status_enum;not null"`
	PerformedBy string            `gorm:"column:performed_by;not null"`
	Reason      *string           `gorm:"column:reason"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
