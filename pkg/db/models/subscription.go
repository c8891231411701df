package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Subscription is a plan grant for one owner. At most one row per owner is
// active at any time; EndDate nil means the grant never expires.
type Subscription struct {
	ID        uint64                   `gorm:"primaryKey;autoIncrement"`
	OwnerID   uint64                   `gorm:"column:owner_id;not null;index"`
	PlanCode  string                   `gorm:"column:plan_code;not null"`
	PlanName  string                   `gorm:"column:plan_name;not null"`
	Price     decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null"`
	Status    enums.SubscriptionStatus `gorm:"column:status;not null;default:'active';index"`
	StartDate time.Time                `gorm:"column:start_date;not null"`
	EndDate   *time.Time               `gorm:"column:end_date"`
	Limits    PlanLimits               `gorm:"embedded"`
	PaymentID *uint64                  `gorm:"column:payment_id"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveOn reports whether the grant is active and not past its end date on
// the given day.
func (s *Subscription) ActiveOn(day time.Time) bool {
	if s.Status != enums.SubscriptionStatusActive {
		return false
	}
	if s.EndDate == nil {
		return true
	}
	return !s.EndDate.Before(truncateDay(day))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
