package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// VendorResponse records one seller's answer to a broadcast. The unique index
// on (routing_id, seller_id) enforces one response per seller.
type VendorResponse struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	RoutingID uuid.UUID                `gorm:"column:routing_id;type:uuid;not null;uniqueIndex:ux_vendor_responses_routing_seller"`
	SellerID  uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_vendor_responses_routing_seller"`
	Response  enums.VendorResponseKind `gorm:"column:response;type:vendor_response_enum;not null"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}
