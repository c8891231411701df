package pubsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResourceExpandsIDs(t *testing.T) {
	c := &Client{project: "gallo-prod"}

	assert.Equal(t, "projects/gallo-prod/subscriptions/gt-notification-worker", c.resource("subscriptions", " gt-notification-worker "))
	assert.Equal(t, "projects/other/subscriptions/x", c.resource("subscriptions", "projects/other/subscriptions/x"))
	assert.Equal(t, "projects/gallo-prod/topics/gt-events", c.resource("topics", "gt-events"))
	assert.Nil(t, c.Publisher("  "))
}

func TestMissingDistinguishesNotFound(t *testing.T) {
	require.NoError(t, missing("topic", "gt-events", nil))

	err := missing("topic", "gt-events", status.Error(codes.NotFound, "gone"))
	assert.EqualError(t, err, `pubsub topic "gt-events" does not exist`)

	cause := status.Error(codes.PermissionDenied, "nope")
	err = missing("subscription", "gt-analytics", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "check pubsub subscription")
}
