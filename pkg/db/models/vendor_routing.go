package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/orderstack/fulfillment-core/pkg/db/types"
	"github.com/orderstack/fulfillment-core/pkg/enums"
)

// VendorRouting is one broadcast per order. winner_id is write-once: the only
// path that sets it is the conditional claim in the routing repository.
type VendorRouting struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_vendor_routings_order"`
	BuyerID            uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	CandidateSellerIDs dbtypes.UUIDArray   `gorm:"column:candidate_seller_ids;type:text;not null"`
	Status             enums.RoutingStatus `gorm:"column:status;type:routing_status_enum;not null;default:'pending_responses'"`
	WinnerID           *uuid.UUID          `gorm:"column:winner_id;type:uuid"`
	AcceptedAt         *time.Time          `gorm:"column:accepted_at"`
	ExpiresAt          time.Time           `gorm:"column:expires_at;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
