// Package idempotency remembers which deliveries a consumer already handled:
// outbox events per worker and MercadoPago payment notifications per status.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gallotrack-backend/pkg/redis"
)

// Manager marks keys with SETNX so the first caller wins and every repeat
// within ttl is reported as seen. Event keys look like
// gt:idem:evt:<consumer>:<event_id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether consumer already saw eventID.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	return m.CheckAndMarkKey(ctx, eventScope(consumer), eventID.String())
}

// Delete forgets an event so a failed handling can be redelivered.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.ReleaseKey(ctx, eventScope(consumer), eventID.String())
}

// CheckAndMarkKey reports whether scope/id was already marked, marking it
// if not.
func (m *Manager) CheckAndMarkKey(ctx context.Context, scope, id string) (bool, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(id) == "" {
		return false, errors.New("scope and id are required")
	}
	fresh, err := m.store.SetNX(ctx, m.store.IdempotencyKey(scope, id), "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

func (m *Manager) ReleaseKey(ctx context.Context, scope, id string) error {
	return m.store.Del(ctx, m.store.IdempotencyKey(scope, id))
}

func eventScope(consumer string) string {
	if consumer == "" {
		return ""
	}
	return "evt:" + consumer
}
