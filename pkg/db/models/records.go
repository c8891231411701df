package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Training is a session logged against one cock.
type Training struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	OwnerID         uint64    `gorm:"column:owner_id;not null;index"`
	CockID          uint64    `gorm:"column:cock_id;not null;index"`
	OccurredAt      time.Time `gorm:"column:occurred_at;not null"`
	Kind            string    `gorm:"column:kind;not null"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null;default:0"`
	Notes           *string   `gorm:"column:notes"`
	MediaURL        string    `gorm:"column:media_url;not null;default:''"`
	MediaStorageID  string    `gorm:"column:media_storage_id;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Fight is a recorded bout for one cock.
type Fight struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	OwnerID        uint64    `gorm:"column:owner_id;not null;index"`
	CockID         uint64    `gorm:"column:cock_id;not null;index"`
	OccurredAt     time.Time `gorm:"column:occurred_at;not null"`
	Venue          string    `gorm:"column:venue;not null;default:''"`
	Opponent       string    `gorm:"column:opponent;not null;default:''"`
	Result         string    `gorm:"column:result;not null"`
	Notes          *string   `gorm:"column:notes"`
	MediaURL       string    `gorm:"column:media_url;not null;default:''"`
	MediaStorageID string    `gorm:"column:media_storage_id;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Vaccine is a dose given or scheduled for one cock.
type Vaccine struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement"`
	OwnerID        uint64     `gorm:"column:owner_id;not null;index"`
	CockID         uint64     `gorm:"column:cock_id;not null;index"`
	OccurredAt     time.Time  `gorm:"column:occurred_at;not null"`
	Vaccine        string     `gorm:"column:vaccine;not null"`
	Dose           string     `gorm:"column:dose;not null;default:''"`
	NextDueAt      *time.Time `gorm:"column:next_due_at"`
	Notes          *string    `gorm:"column:notes"`
	MediaURL       string     `gorm:"column:media_url;not null;default:''"`
	MediaStorageID string     `gorm:"column:media_storage_id;not null;default:''"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// MarketplaceListing offers one cock for sale.
type MarketplaceListing struct {
	ID          uint64             `gorm:"primaryKey;autoIncrement"`
	OwnerID     uint64             `gorm:"column:owner_id;not null;index"`
	CockID      uint64             `gorm:"column:cock_id;not null;index"`
	Price       decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	Currency    string             `gorm:"column:currency;not null;default:'USD'"`
	Description *string            `gorm:"column:description"`
	State       enums.ListingState `gorm:"column:state;not null;default:'for_sale'"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
