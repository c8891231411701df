package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/gallotrack-backend/internal/analytics/types"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type fakeWriter struct {
	rows []types.BillingEventRow
	err  error
}

func (f *fakeWriter) InsertBilling(_ context.Context, row types.BillingEventRow) error {
	f.rows = append(f.rows, row)
	return f.err
}

func newTestRouter(t *testing.T) (*Router, *fakeWriter) {
	t.Helper()
	w := &fakeWriter{}
	r, err := NewRouter(w, logger.New(logger.Options{ServiceName: "analytics-test"}))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r, w
}

func envelope(eventType enums.OutboxEventType, aggregateID uint64, payload string) types.Envelope {
	return types.Envelope{
		EventID:     "evt-1",
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:     json.RawMessage(payload),
	}
}

func TestNewRouterValidation(t *testing.T) {
	if _, err := NewRouter(nil, logger.New(logger.Options{ServiceName: "t"})); err == nil {
		t.Fatal("expected error without writer")
	}
	if _, err := NewRouter(&fakeWriter{}, nil); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestPaymentSubmittedRow(t *testing.T) {
	r, w := newTestRouter(t)
	env := envelope(enums.EventPaymentSubmitted, 3, `{"payment_id":3,"owner_id":42,"plan_code":"premium","amount":"9.99","currency":"USD","method":"qr_transfer"}`)

	if err := r.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(w.rows))
	}
	row := w.rows[0]
	if row.EventID != "evt-1" || row.EventType != "payment_submitted" {
		t.Fatalf("unexpected identity %s/%s", row.EventID, row.EventType)
	}
	if row.OwnerID != 42 || row.PlanCode != "premium" {
		t.Fatalf("unexpected owner/plan %d/%s", row.OwnerID, row.PlanCode)
	}
	if !row.PaymentID.Valid || row.PaymentID.Int64 != 3 {
		t.Fatalf("unexpected payment id %+v", row.PaymentID)
	}
	if row.PaymentState.StringVal != "pending" || row.PaymentMethod.StringVal != "qr_transfer" {
		t.Fatalf("unexpected state/method %+v %+v", row.PaymentState, row.PaymentMethod)
	}
	if row.Amount == nil || row.Amount.FloatString(2) != "9.99" {
		t.Fatalf("unexpected amount %v", row.Amount)
	}
	if !row.Payload.Valid {
		t.Fatal("expected raw payload to be kept")
	}
}

func TestPaymentDecidedRowUsesVerifier(t *testing.T) {
	r, w := newTestRouter(t)
	actor := uint64(99)
	env := envelope(enums.EventPaymentApproved, 3, `{"payment_id":3,"owner_id":42,"plan_code":"premium","state":"approved","verified_by":7}`)
	env.ActorID = &actor

	if err := r.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row := w.rows[0]
	if row.ActorID.Int64 != 7 {
		t.Fatalf("expected verifier as actor, got %d", row.ActorID.Int64)
	}
	if row.PaymentState.StringVal != "approved" {
		t.Fatalf("unexpected state %q", row.PaymentState.StringVal)
	}
	if row.Amount != nil {
		t.Fatal("decisions carry no amount")
	}
}

func TestSubscriptionRows(t *testing.T) {
	r, w := newTestRouter(t)

	promoted := envelope(enums.EventSubscriptionPromoted, 9, `{"subscription_id":9,"owner_id":42,"plan_code":"premium","end_date":"2026-06-01T00:00:00Z","payment_id":3}`)
	if err := r.Handle(context.Background(), promoted); err != nil {
		t.Fatalf("handle promoted: %v", err)
	}
	expired := envelope(enums.EventSubscriptionExpired, 9, `{"owner_id":42,"plan_code":"premium"}`)
	if err := r.Handle(context.Background(), expired); err != nil {
		t.Fatalf("handle expired: %v", err)
	}

	if len(w.rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(w.rows))
	}
	if !w.rows[0].EndDate.Valid || w.rows[0].EndDate.Timestamp.Month() != time.June {
		t.Fatalf("unexpected end date %+v", w.rows[0].EndDate)
	}
	if w.rows[0].PaymentID.Int64 != 3 || w.rows[0].SubscriptionID.Int64 != 9 {
		t.Fatalf("unexpected ids %+v", w.rows[0])
	}
	if w.rows[1].SubscriptionID.Int64 != 9 || w.rows[1].PaymentID.Valid {
		t.Fatalf("unexpected expired row %+v", w.rows[1])
	}
}

func TestHandleUnsupportedEvent(t *testing.T) {
	r, w := newTestRouter(t)
	err := r.Handle(context.Background(), envelope(enums.EventNotificationRequested, 1, `{"title":"x"}`))
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if len(w.rows) != 0 {
		t.Fatal("no row expected")
	}
}

func TestHandleBadPayload(t *testing.T) {
	r, w := newTestRouter(t)
	if err := r.Handle(context.Background(), envelope(enums.EventPaymentSubmitted, 1, ``)); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if err := r.Handle(context.Background(), envelope(enums.EventPaymentSubmitted, 1, `{"payment_id":"x"}`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(w.rows) != 0 {
		t.Fatal("no row expected")
	}
}

func TestHandleWriterError(t *testing.T) {
	r, w := newTestRouter(t)
	w.err = errors.New("bigquery down")
	if err := r.Handle(context.Background(), envelope(enums.EventSubscriptionExpired, 9, `{"owner_id":42,"plan_code":"premium"}`)); err == nil {
		t.Fatal("expected writer error to surface")
	}
}
