package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlanLimits are the per-plan caps. They are copied onto a subscription at
// promotion time so later catalogue edits do not change existing grants.
type PlanLimits struct {
	MaxCocks            int `gorm:"column:max_cocks;not null"`
	MaxTrainingsPerCock int `gorm:"column:max_trainings_per_cock;not null"`
	MaxFightsPerCock    int `gorm:"column:max_fights_per_cock;not null"`
	MaxVaccinesPerCock  int `gorm:"column:max_vaccines_per_cock;not null"`
}

// Plan is a row of the read-mostly plan catalogue.
type Plan struct {
	ID           uint64                      `gorm:"primaryKey;autoIncrement"`
	Code         string                      `gorm:"column:code;not null;uniqueIndex"`
	Name         string                      `gorm:"column:name;not null"`
	Price        decimal.Decimal             `gorm:"column:price;type:numeric(12,2);not null"`
	Currency     string                      `gorm:"column:currency;not null;default:'USD'"`
	DurationDays *int                        `gorm:"column:duration_days"`
	Limits       PlanLimits                  `gorm:"embedded"`
	Features     datatypes.JSONSlice[string] `gorm:"column:features"`
	DisplayOrder int                         `gorm:"column:display_order;not null;default:0"`
	Highlighted  bool                        `gorm:"column:highlighted;not null;default:false"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Plan) TableName() string { return "plan_catalog" }

// Perpetual reports whether grants of this plan never expire.
func (p *Plan) Perpetual() bool {
	return p.DurationDays == nil || *p.DurationDays <= 0
}
