package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/gallotrack-backend/internal/analytics/router"
	"github.com/angelmondragon/gallotrack-backend/internal/analytics/types"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
)

func TestBuildEnvelope(t *testing.T) {
	svc := newTestService(t)
	eventID := uuid.NewString()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{PrincipalID: 7, Role: "admin"},
		Data:       json.RawMessage(`{"payment_id":3}`),
	}
	msg := buildMessage(payload, map[string]string{
		"event_type":     "payment_approved",
		"aggregate_type": "pending_payment",
		"aggregate_id":   "3",
	})

	env, err := svc.buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.EventPaymentApproved {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.AggregateType != enums.AggregatePendingPayment {
		t.Fatalf("unexpected aggregate type %v", env.AggregateType)
	}
	if env.AggregateID != 3 {
		t.Fatalf("unexpected aggregate id %d", env.AggregateID)
	}
	if env.EventID != eventID {
		t.Fatalf("unexpected event id %s", env.EventID)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
	if env.ActorID == nil || *env.ActorID != 7 {
		t.Fatalf("unexpected actor %v", env.ActorID)
	}
}

func TestBuildEnvelopeRejectsBadAttributes(t *testing.T) {
	svc := newTestService(t)
	payload := outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: json.RawMessage(`{}`)}
	cases := map[string]map[string]string{
		"unknown event":     {"event_type": "order_created", "aggregate_type": "subscription", "aggregate_id": "1"},
		"unknown aggregate": {"event_type": "payment_approved", "aggregate_type": "vendor_order", "aggregate_id": "1"},
		"missing aggregate": {"event_type": "payment_approved", "aggregate_type": "pending_payment"},
		"non numeric id":    {"event_type": "payment_approved", "aggregate_type": "pending_payment", "aggregate_id": "abc"},
	}
	for name, attrs := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.buildEnvelope(buildMessage(payload, attrs)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestProcessHandlesEvent(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if res.nack {
		t.Fatal("expected ack")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if handler.envelope.EventType != enums.EventSubscriptionExpired {
		t.Fatalf("unexpected event type %v", handler.envelope.EventType)
	}
	if len(manager.checked) != 1 || len(manager.deleted) != 0 {
		t.Fatalf("unexpected idempotency calls %d/%d", len(manager.checked), len(manager.deleted))
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
}

func TestProcessIdempotencyFailureNacks(t *testing.T) {
	manager := &stubManager{checkErr: errors.New("redis down")}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	if res := svc.process(context.Background(), buildAnalyticsMessage(t)); !res.nack {
		t.Fatal("expected nack when idempotency check fails")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if !res.nack {
		t.Fatalf("expected nack on handler error")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete on failure")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")})
	if res.nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func TestProcessUnsupportedEvent(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: fmt.Errorf("%w: notification_requested", router.ErrUnsupportedEventType)}
	svc := newTestServiceWithDeps(t, handler, manager)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if res.nack {
		t.Fatalf("unsupported event should ack")
	}
	if len(manager.deleted) != 0 {
		t.Fatalf("idempotency delete should not run")
	}
}

func TestNewServiceValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test"})
	if _, err := NewService(nil, &stubHandler{}, &stubManager{}, logg); err == nil {
		t.Fatal("expected error without subscription")
	}
}

func buildAnalyticsMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"owner_id":42,"plan_code":"premium"}`),
	}
	return buildMessage(payload, map[string]string{
		"event_type":     "subscription_expired",
		"aggregate_type": "subscription",
		"aggregate_id":   "9",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func newTestService(t *testing.T) *Service {
	return newTestServiceWithDeps(t, &stubHandler{}, &stubManager{})
}

func newTestServiceWithDeps(t *testing.T, handler Handler, manager *stubManager) *Service {
	t.Helper()
	return &Service{
		handler: handler,
		manager: manager,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test"}),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}
