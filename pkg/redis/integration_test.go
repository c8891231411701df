//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

func newContainerClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := New(ctx, config.RedisConfig{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestVerificationCodeVerifiesOnce(t *testing.T) {
	c := newContainerClient(t)
	ctx := context.Background()

	require.NoError(t, c.StoreVerificationCode(ctx, "Breeder@Example.com", "493021", time.Minute))

	ok, err := c.ConsumeVerificationCode(ctx, "breeder@example.com", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ConsumeVerificationCode(ctx, "breeder@example.com", "493021")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ConsumeVerificationCode(ctx, "breeder@example.com", "493021")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrWithTTLKeepsFirstWindow(t *testing.T) {
	c := newContainerClient(t)
	ctx := context.Background()
	key := "gt:throttle:login:addr:10.0.0.1"

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, c.rdb.Expire(ctx, key, 5*time.Second).Err())
	_, err = c.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	ttl, err = c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 5*time.Second)
}

func TestCompareAndDeleteGuardsOwner(t *testing.T) {
	c := newContainerClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "gt:cron:lock", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := c.CompareAndDelete(ctx, "gt:cron:lock", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = c.CompareAndDelete(ctx, "gt:cron:lock", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
}
