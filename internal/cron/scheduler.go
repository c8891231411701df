package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
)

// Job is one maintenance task of the cron worker, such as expiring lapsed
// subscriptions or pruning published outbox rows.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cadence. A zero Every runs the job on every tick.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Scheduler ticks at a fixed interval and, while it holds the cluster lock,
// runs every entry that is due.
type Scheduler struct {
	logg    *logger.Logger
	lock    Lock
	metrics *metrics.CronJobMetrics
	tick    time.Duration
	entries []Entry
	lastRun map[string]time.Time
	now     func() time.Time
}

func NewScheduler(logg *logger.Logger, lock Lock, m *metrics.CronJobMetrics, tick time.Duration, entries ...Entry) (*Scheduler, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if lock == nil {
		return nil, errors.New("lock required")
	}
	if tick <= 0 {
		tick = time.Hour
	}
	s := &Scheduler{logg: logg, lock: lock, metrics: m, tick: tick, lastRun: map[string]time.Time{}, now: time.Now}
	for _, e := range entries {
		if e.Job != nil {
			s.entries = append(s.entries, e)
		}
	}
	return s, nil
}

// Run sweeps immediately and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.Sweep(ctx); err != nil {
			s.logg.Error(ctx, "cron sweep finished with failures", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs the due entries once. Every failing job is reported; one
// failure never stops the others.
func (s *Scheduler) Sweep(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping sweep")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	var errs error
	ran := 0
	for _, e := range s.entries {
		name := e.Job.Name()
		if last, ok := s.lastRun[name]; ok && e.Every > 0 && s.now().Sub(last) < e.Every {
			continue
		}
		ran++
		if err := s.run(ctx, e.Job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.lastRun[name] = s.now()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"jobs_run": ran, "jobs_failed": len(multierr.Errors(errs))}), "cron sweep done")
	return errs
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), elapsed)
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(job.Name())
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(ctx, "cron job done")
	return nil
}
