package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/registry"
)

func TestDrainPublishesRoutedRows(t *testing.T) {
	row := paymentRow(0)
	f := newRelayFixture(t, 5, row)

	n, err := f.relay.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 claimed row, got %d", n)
	}
	if len(f.sink.sent) != 1 || f.sink.sent[0].OrderingKey != "pending_payment:9" {
		t.Fatalf("unexpected sends %+v", f.sink.sent)
	}
	if len(f.rows.published) != 1 || f.rows.published[0] != row.ID {
		t.Fatalf("row not marked published: %+v", f.rows)
	}
	if got := f.count(enums.EventPaymentSubmitted, outcomePublished); got != 1 {
		t.Fatalf("expected published counter 1, got %v", got)
	}
}

func TestDrainRetriesSinkFailureBelowLimit(t *testing.T) {
	row := paymentRow(2)
	f := newRelayFixture(t, 5, row)
	f.sink.err = errors.New("unavailable")

	if _, err := f.relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(f.rows.failed) != 1 || len(f.rows.terminal) != 0 {
		t.Fatalf("expected one retry, got %+v", f.rows)
	}
	if got := f.count(enums.EventPaymentSubmitted, outcomeRetry); got != 1 {
		t.Fatalf("expected retry counter 1, got %v", got)
	}
}

func TestDrainParksOnLastAttempt(t *testing.T) {
	row := paymentRow(4)
	f := newRelayFixture(t, 5, row)
	f.sink.err = errors.New("unavailable")

	if _, err := f.relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(f.rows.terminal) != 1 || len(f.rows.failed) != 0 {
		t.Fatalf("expected row parked, got %+v", f.rows)
	}
	if f.rows.terminalAttempts != 5 {
		t.Fatalf("expected terminal attempts 5, got %d", f.rows.terminalAttempts)
	}
}

func TestDrainParksRejectedRowsWithoutSending(t *testing.T) {
	row := paymentRow(0)
	row.AggregateType = enums.AggregateSubscription
	f := newRelayFixture(t, 5, row)

	if _, err := f.relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(f.sink.sent) != 0 {
		t.Fatalf("rejected row must not be sent")
	}
	if len(f.rows.terminal) != 1 || !errors.Is(f.rows.terminalErr, registry.ErrRejected) {
		t.Fatalf("expected rejected row parked, got %+v", f.rows)
	}
	if got := f.count(enums.EventPaymentSubmitted, outcomeParked); got != 1 {
		t.Fatalf("expected parked counter 1, got %v", got)
	}
}

func TestDrainSurfacesSettleFailure(t *testing.T) {
	f := newRelayFixture(t, 5, paymentRow(0))
	f.rows.markErr = errors.New("connection reset")

	if _, err := f.relay.Drain(context.Background()); err == nil {
		t.Fatalf("expected settle failure to abort the batch")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.relay.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRelayRequiresCollaborators(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard})
	if _, err := NewRelay(config.OutboxConfig{}, nil, &fakeRows{}, &fakeRouter{}, &fakeSink{}, logg, nil); err == nil {
		t.Fatalf("expected missing store error")
	}
	relay, err := NewRelay(config.OutboxConfig{}, fakeStore{}, &fakeRows{}, &fakeRouter{}, &fakeSink{}, logg, nil)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	if relay.batch != 50 || relay.maxAttempts != 10 {
		t.Fatalf("expected defaults, got batch=%d attempts=%d", relay.batch, relay.maxAttempts)
	}
}

type relayFixture struct {
	relay *Relay
	rows  *fakeRows
	sink  *fakeSink
	reg   *prometheus.Registry
}

func newRelayFixture(t *testing.T, maxAttempts int, events ...models.OutboxEvent) *relayFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	rows := &fakeRows{events: events}
	sink := &fakeSink{}
	router, err := registry.NewRouter(config.PubSubConfig{NotificationTopic: "gt-events"})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	relay, err := NewRelay(
		config.OutboxConfig{BatchSize: 10, MaxAttempts: maxAttempts, PollIntervalMS: 1},
		fakeStore{}, rows, router, sink,
		logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		metrics.NewOutboxMetrics(reg),
	)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	return &relayFixture{relay: relay, rows: rows, sink: sink, reg: reg}
}

func (f *relayFixture) count(eventType enums.OutboxEventType, res outcome) float64 {
	families, err := f.reg.Gather()
	if err != nil || len(families) == 0 {
		return 0
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == string(eventType) && labels["outcome"] == string(res) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func paymentRow(attempts int) models.OutboxEvent {
	payload := fmt.Sprintf(`{"version":1,"eventId":"evt-%d","occurredAt":"2026-03-14T09:30:00Z","data":{"payment_id":9,"owner_id":3,"plan_code":"basic","amount":"5","currency":"USD","method":"qr_transfer"}}`, attempts)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentSubmitted,
		AggregateType: enums.AggregatePendingPayment,
		AggregateID:   9,
		Payload:       []byte(payload),
		AttemptCount:  attempts,
	}
}

type fakeStore struct{}

func (fakeStore) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRows struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalErr      error
	terminalAttempts int
	markErr          error
}

func (f *fakeRows) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return f.markErr
}

func (f *fakeRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, attempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalErr = err
	f.terminalAttempts = attempts
	return f.markErr
}

type fakeRouter struct{}

func (fakeRouter) Route(models.OutboxEvent) (*registry.Message, error) {
	return &registry.Message{}, nil
}

type fakeSink struct {
	sent []*registry.Message
	err  error
}

func (f *fakeSink) Send(_ context.Context, msg *registry.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
