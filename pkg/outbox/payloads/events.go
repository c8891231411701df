package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// PaymentSubmittedEvent tells admins a payment is waiting for review.
type PaymentSubmittedEvent struct {
	PaymentID uint64              `json:"payment_id"`
	OwnerID   uint64              `json:"owner_id"`
	PlanCode  string              `json:"plan_code"`
	Amount    decimal.Decimal     `json:"amount"`
	Currency  string              `json:"currency"`
	Method    enums.PaymentMethod `json:"method"`
}

// PaymentDecidedEvent is emitted when a payment reaches approved or rejected.
type PaymentDecidedEvent struct {
	PaymentID  uint64             `json:"payment_id"`
	OwnerID    uint64             `json:"owner_id"`
	PlanCode   string             `json:"plan_code"`
	State      enums.PaymentState `json:"state"`
	VerifiedBy *uint64            `json:"verified_by,omitempty"`
	Note       string             `json:"note,omitempty"`
}

// SubscriptionPromotedEvent reports a new active grant.
type SubscriptionPromotedEvent struct {
	SubscriptionID uint64     `json:"subscription_id"`
	OwnerID        uint64     `json:"owner_id"`
	PlanCode       string     `json:"plan_code"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	PaymentID      *uint64    `json:"payment_id,omitempty"`
}

// SubscriptionExpiredEvent reports a lapsed grant replaced by gratis.
type SubscriptionExpiredEvent struct {
	OwnerID  uint64 `json:"owner_id"`
	PlanCode string `json:"plan_code"`
}

// NotificationRequestedEvent is a free-form push request.
type NotificationRequestedEvent struct {
	Audience     string            `json:"audience"`
	PrincipalIDs []uint64          `json:"principal_ids,omitempty"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
}
