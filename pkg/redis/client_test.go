package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

func TestKeysShareNamespace(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "gt:idem:7|POST|/api/v1/payments:abc", c.IdempotencyKey("7|POST|/api/v1/payments", "abc"))
	assert.Equal(t, "gt:idem:notification-worker", c.IdempotencyKey("notification-worker", ""))
	assert.Equal(t, "gt:verify:breeder@example.com", verificationKey(" Breeder@Example.com "))
}

func TestOptionsPreferURL(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/2",
		Address:     "ignored:6379",
		PoolSize:    20,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)
}

func TestOptionsFallBackToAddress(t *testing.T) {
	opts, err := options(config.RedisConfig{Address: "localhost:6379", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 4, opts.DB)

	_, err = options(config.RedisConfig{})
	assert.Error(t, err)

	_, err = options(config.RedisConfig{URL: "http://not-redis"})
	assert.Error(t, err)
}
