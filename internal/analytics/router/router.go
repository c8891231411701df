// Package router maps outbox billing events to BigQuery rows.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/gallotrack-backend/internal/analytics/types"
	"github.com/angelmondragon/gallotrack-backend/internal/analytics/writer"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by the handlers.
type Writer interface {
	InsertBilling(ctx context.Context, row types.BillingEventRow) error
}

type rowBuilder func(envelope types.Envelope) (types.BillingEventRow, error)

// Router dispatches analytics envelopes to the row builder for their event type.
type Router struct {
	writer   Writer
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

func NewRouter(w Writer, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer: w,
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventPaymentSubmitted:     paymentSubmittedRow,
			enums.EventPaymentApproved:      paymentDecidedRow,
			enums.EventPaymentRejected:      paymentDecidedRow,
			enums.EventSubscriptionPromoted: subscriptionPromotedRow,
			enums.EventSubscriptionExpired:  subscriptionExpiredRow,
		},
		logg: logg,
	}, nil
}

// Handle builds the row for envelope and writes it.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	row, err := build(envelope)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	if row.Payload, err = writer.EncodeJSON(envelope.Payload); err != nil {
		return err
	}
	if envelope.ActorID != nil && !row.ActorID.Valid {
		row.ActorID = nullInt(*envelope.ActorID)
	}
	return r.writer.InsertBilling(ctx, row)
}

func baseRow(envelope types.Envelope, ownerID uint64, planCode string) types.BillingEventRow {
	return types.BillingEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		OwnerID:    int64(ownerID),
		PlanCode:   planCode,
	}
}

func paymentSubmittedRow(envelope types.Envelope) (types.BillingEventRow, error) {
	var p payloads.PaymentSubmittedEvent
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return types.BillingEventRow{}, err
	}
	row := baseRow(envelope, p.OwnerID, p.PlanCode)
	row.PaymentID = nullInt(p.PaymentID)
	row.PaymentState = nullString(string(enums.PaymentStatePending))
	row.PaymentMethod = nullString(string(p.Method))
	row.Amount = p.Amount.Rat()
	row.Currency = nullString(p.Currency)
	return row, nil
}

func paymentDecidedRow(envelope types.Envelope) (types.BillingEventRow, error) {
	var p payloads.PaymentDecidedEvent
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return types.BillingEventRow{}, err
	}
	row := baseRow(envelope, p.OwnerID, p.PlanCode)
	row.PaymentID = nullInt(p.PaymentID)
	row.PaymentState = nullString(string(p.State))
	if p.VerifiedBy != nil {
		row.ActorID = nullInt(*p.VerifiedBy)
	}
	return row, nil
}

func subscriptionPromotedRow(envelope types.Envelope) (types.BillingEventRow, error) {
	var p payloads.SubscriptionPromotedEvent
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return types.BillingEventRow{}, err
	}
	row := baseRow(envelope, p.OwnerID, p.PlanCode)
	row.SubscriptionID = nullInt(p.SubscriptionID)
	if p.PaymentID != nil {
		row.PaymentID = nullInt(*p.PaymentID)
	}
	if p.EndDate != nil {
		row.EndDate = cbigquery.NullTimestamp{Timestamp: p.EndDate.UTC(), Valid: true}
	}
	return row, nil
}

func subscriptionExpiredRow(envelope types.Envelope) (types.BillingEventRow, error) {
	var p payloads.SubscriptionExpiredEvent
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return types.BillingEventRow{}, err
	}
	row := baseRow(envelope, p.OwnerID, p.PlanCode)
	row.SubscriptionID = nullInt(envelope.AggregateID)
	return row, nil
}

func nullInt(v uint64) cbigquery.NullInt64 {
	return cbigquery.NullInt64{Int64: int64(v), Valid: true}
}

func nullString(v string) cbigquery.NullString {
	if v == "" {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: v, Valid: true}
}
