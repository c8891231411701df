package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished outcome = "published"
	outcomeRetry     outcome = "retry"
	outcomeParked    outcome = "parked"
)

const (
	sendTimeout = 15 * time.Second
	idleCeiling = 10 * time.Second
)

type store interface {
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type router interface {
	Route(models.OutboxEvent) (*registry.Message, error)
}

// sink delivers one routed message and blocks until the broker acks it.
type sink interface {
	Send(context.Context, *registry.Message) error
}

// Relay drains committed outbox rows into Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several relays can run.
type Relay struct {
	store   store
	rows    rows
	router  router
	sink    sink
	logg    *logger.Logger
	metrics *metrics.OutboxMetrics

	batch       int
	maxAttempts int
	interval    time.Duration
	rand        *rand.Rand
}

func NewRelay(cfg config.OutboxConfig, st store, r rows, rt router, s sink, logg *logger.Logger, m *metrics.OutboxMetrics) (*Relay, error) {
	switch {
	case st == nil:
		return nil, errors.New("store is required")
	case r == nil:
		return nil, errors.New("outbox rows are required")
	case rt == nil:
		return nil, errors.New("router is required")
	case s == nil:
		return nil, errors.New("sink is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	relay := &Relay{
		store:       st,
		rows:        r,
		router:      rt,
		sink:        s,
		logg:        logg,
		metrics:     m,
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		interval:    time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if relay.batch <= 0 {
		relay.batch = 50
	}
	if relay.maxAttempts <= 0 {
		relay.maxAttempts = 10
	}
	if relay.interval <= 0 {
		relay.interval = 500 * time.Millisecond
	}
	return relay, nil
}

// Run drains until ctx ends. A full batch is followed immediately by the
// next one; an empty batch or a store failure waits, doubling the wait on
// consecutive failures up to idleCeiling.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.interval
	for {
		n, err := r.Drain(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = min(wait*2, idleCeiling)
		case n >= r.batch:
			wait = r.interval
			continue
		default:
			wait = r.interval
		}
		if err := r.pause(ctx, wait); err != nil {
			return err
		}
	}
}

// Drain handles one batch and reports how many rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.store.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.rows.FetchUnpublishedForPublish(tx, r.batch, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			res, cause := r.deliver(ctx, event)
			if err := r.settle(ctx, tx, event, res, cause); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) (outcome, error) {
	msg, err := r.router.Route(event)
	if err != nil {
		return outcomeParked, err
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := r.sink.Send(sendCtx, msg); err != nil {
		if event.AttemptCount+1 >= r.maxAttempts {
			return outcomeParked, fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)
		}
		return outcomeRetry, err
	}
	return outcomePublished, nil
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, res outcome, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt":        event.AttemptCount + 1,
		"outcome":        res,
	})
	r.metrics.Inc(string(event.EventType), string(res))

	var err error
	switch res {
	case outcomePublished:
		err = r.rows.MarkPublishedTx(tx, event.ID)
		r.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		err = r.rows.MarkFailedTx(tx, event.ID, cause)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed, will retry")
	case outcomeParked:
		err = r.rows.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox event parked")
	}
	if err != nil {
		return fmt.Errorf("settle %s as %s: %w", event.ID, res, err)
	}
	return nil
}

func (r *Relay) pause(ctx context.Context, d time.Duration) error {
	d += time.Duration(r.rand.Int63n(int64(d/4) + 1))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
