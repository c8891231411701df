package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/repo/repotest"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := repotest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentSubmitted,
			AggregateType: enums.AggregatePendingPayment,
			AggregateID:   42,
			Actor:         &ActorRef{PrincipalID: 7, Role: "breeder"},
			Data:          map[string]any{"plan_code": "premium"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(42), rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, uint64(7), env.Actor.PrincipalID)
	assert.JSONEq(t, `{"plan_code":"premium"}`, string(env.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := repotest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentRejected,
			AggregateType: enums.AggregatePendingPayment,
			AggregateID:   1,
			Data:          struct{}{},
		}))
		return errors.New("abort")
	})

	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRepositoryLifecycle(t *testing.T) {
	conn := repotest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventSubscriptionExpired,
				AggregateType: enums.AggregateSubscription,
				AggregateID:   i,
				Data:          map[string]uint64{"owner_id": i},
			})
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("timeout")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "timeout", *pending[0].LastError)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
