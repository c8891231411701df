package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// PendingPayment tracks an upgrade payment from submission to decision.
// ExternalID is the processor-issued id for automated methods and is unique
// so webhook replays converge on one row.
type PendingPayment struct {
	ID               uint64              `gorm:"primaryKey;autoIncrement"`
	OwnerID          uint64              `gorm:"column:owner_id;not null;index"`
	PlanCode         string              `gorm:"column:plan_code;not null"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string              `gorm:"column:currency;not null;default:'USD'"`
	Method           enums.PaymentMethod `gorm:"column:method;not null"`
	Reference        *string             `gorm:"column:reference"`
	ExternalID       *string             `gorm:"column:external_id;uniqueIndex"`
	ProcessorStatus  *string             `gorm:"column:processor_status"`
	QRPayload        string              `gorm:"column:qr_payload;not null;default:''"`
	ReceiptURL       string              `gorm:"column:receipt_url;not null;default:''"`
	ReceiptStorageID string              `gorm:"column:receipt_storage_id;not null;default:''"`
	State            enums.PaymentState  `gorm:"column:state;not null;default:'pending';index"`
	VerifiedBy       *uint64             `gorm:"column:verified_by"`
	AdminNote        *string             `gorm:"column:admin_note"`
	Attempts         int                 `gorm:"column:attempts;not null;default:0"`
	ReviewStartedAt  *time.Time          `gorm:"column:review_started_at"`
	DecidedAt        *time.Time          `gorm:"column:decided_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
