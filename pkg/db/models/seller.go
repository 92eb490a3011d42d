package models

import (
	"time"

	"github.com/google/uuid"
)

// Seller is a wholesaler profile used by scored vendor selection.
type Seller struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Latitude    float64   `gorm:"column:latitude;not null;default:0"`
	Longitude   float64   `gorm:"column:longitude;not null;default:0"`
	Reliability float64   `gorm:"column:reliability;not null;default:0.5"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Buyer is a retailer profile; coordinates feed the distance term of scoring.
type Buyer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Latitude  float64   `gorm:"column:latitude;not null;default:0"`
	Longitude float64   `gorm:"column:longitude;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
