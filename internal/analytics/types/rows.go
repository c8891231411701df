package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// BillingEventRow mirrors the billing_events BigQuery schema. One row per
// payment or subscription lifecycle event.
type BillingEventRow struct {
	EventID        string                  `bigquery:"event_id"`
	EventType      string                  `bigquery:"event_type"`
	OccurredAt     time.Time               `bigquery:"occurred_at"`
	OwnerID        int64                   `bigquery:"owner_id"`
	PlanCode       string                  `bigquery:"plan_code"`
	PaymentID      cbigquery.NullInt64     `bigquery:"payment_id"`
	SubscriptionID cbigquery.NullInt64     `bigquery:"subscription_id"`
	ActorID        cbigquery.NullInt64     `bigquery:"actor_id"`
	PaymentState   cbigquery.NullString    `bigquery:"payment_state"`
	PaymentMethod  cbigquery.NullString    `bigquery:"payment_method"`
	Amount         *big.Rat                `bigquery:"amount"`
	Currency       cbigquery.NullString    `bigquery:"currency"`
	EndDate        cbigquery.NullTimestamp `bigquery:"end_date"`
	Payload        cbigquery.NullJSON      `bigquery:"payload"`
}
