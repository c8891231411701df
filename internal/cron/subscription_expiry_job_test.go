package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/internal/billing"
	"github.com/angelmondragon/gallotrack-backend/internal/repo/repotest"
	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type fakeExpirer struct {
	results []int
	calls   int
	err     error
}

func (f *fakeExpirer) ExpireLapsed(context.Context, int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestSubscriptionExpiryJobLoopsUntilDrained(t *testing.T) {
	expirer := &fakeExpirer{results: []int{250, 40}}
	job, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Logger: testLogger(), Billing: expirer})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, expirer.calls)
}

func TestSubscriptionExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	job, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Logger: testLogger(), Billing: expirer})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
}

func TestSubscriptionExpiryJobAgainstBilling(t *testing.T) {
	conn := repotest.Open(t)
	repotest.SeedPlans(t, conn)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, err := billing.NewService(billing.ServiceParams{
		Repo:              billing.NewRepository(conn),
		TransactionRunner: db.Wrap(conn),
		Now:               func() time.Time { return now },
	})
	require.NoError(t, err)

	end := billing.Today(now).AddDate(0, 0, -1)
	require.NoError(t, conn.Create(&models.Subscription{
		OwnerID:   5,
		PlanCode:  "premium",
		PlanName:  "Premium",
		Status:    enums.SubscriptionStatusActive,
		StartDate: end.AddDate(0, 0, -30),
		EndDate:   &end,
	}).Error)

	job, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Logger: testLogger(), Billing: svc, Limit: 1})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	active, err := svc.GetActive(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, billing.PlanGratis, active.PlanCode)
}
