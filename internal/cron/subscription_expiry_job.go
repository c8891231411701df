package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

const defaultExpiryBatch = 250

type SubscriptionExpiryJobParams struct {
	Logger  *logger.Logger
	Billing subscriptionExpirer
	Limit   int
}

type subscriptionExpirer interface {
	ExpireLapsed(ctx context.Context, limit int) (int, error)
}

// NewSubscriptionExpiryJob expires lapsed grants and returns their owners to
// the gratis plan. Owners are processed in batches until none remain.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	return &subscriptionExpiryJob{
		logg:    params.Logger,
		billing: params.Billing,
		limit:   limit,
	}, nil
}

type subscriptionExpiryJob struct {
	logg    *logger.Logger
	billing subscriptionExpirer
	limit   int
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		handled, err := j.billing.ExpireLapsed(ctx, j.limit)
		if err != nil {
			return fmt.Errorf("expire subscriptions: %w", err)
		}
		total += handled
		if handled == 0 {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "owners_expired", total), "subscription expiry complete")
	return nil
}
