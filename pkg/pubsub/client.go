// Package pubsub carries gallotrack outbox events from the relay to the
// notification and analytics workers over Pub/Sub v2.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

// Client knows which topics and subscriptions its process depends on and
// verifies them on start and on every Ping.
type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
	topics  []string
	subs    []string
}

// NewPublisherClient serves the outbox relay, which needs the event topic.
func NewPublisherClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	return dial(ctx, gcp, cfg, logg, []string{cfg.NotificationTopic}, nil)
}

// NewSubscriberClient serves a worker reading subscription.
func NewSubscriberClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, subscription string) (*Client, error) {
	return dial(ctx, gcp, cfg, logg, nil, []string{subscription})
}

func dial(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, topics, subs []string) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	for _, name := range append(append([]string{}, topics...), subs...) {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("pubsub topic and subscription names are required")
		}
	}
	ps, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{ps: ps, project: project, cfg: cfg, topics: topics, subs: subs}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project_id": project, "topics": topics, "subscriptions": subs}), "pubsub ready")
	}
	return c, nil
}

// Ping confirms every topic and subscription this process uses still exists.
func (c *Client) Ping(ctx context.Context) error {
	for _, t := range c.topics {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resource("topics", t)})
		if err := missing("topic", t, err); err != nil {
			return err
		}
	}
	for _, s := range c.subs {
		_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resource("subscriptions", s)})
		if err := missing("subscription", s, err); err != nil {
			return err
		}
	}
	return nil
}

func missing(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("check pubsub %s %q: %w", kind, name, err)
	}
}

// Publisher returns the handle for topic, given as an id or a full name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if strings.TrimSpace(topic) == "" {
		return nil
	}
	return c.ps.Publisher(c.resource("topics", topic))
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.ps.Subscriber(c.resource("subscriptions", c.cfg.NotificationSubscription))
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.ps.Subscriber(c.resource("subscriptions", c.cfg.AnalyticsSubscription))
}

func (c *Client) Close() error {
	return c.ps.Close()
}

// resource expands an id to projects/<project>/<kind>/<id>. Full names pass
// through unchanged.
func (c *Client) resource(kind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") {
		return name
	}
	return "projects/" + c.project + "/" + kind + "/" + name
}
