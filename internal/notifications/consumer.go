package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the consumer's idempotency keys.
const ConsumerName = "notification-worker"

type fanouter interface {
	Fanout(ctx context.Context, target Target, n Notification) (*Summary, error)
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns outbox events published to Pub/Sub into push fanouts.
type Consumer struct {
	fanout       fanouter
	subscription *pubsub.Subscriber
	idempotency  processedGuard
	logg         *logger.Logger
}

func NewConsumer(fanout fanouter, subscription *pubsub.Subscriber, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if fanout == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		fanout:       fanout,
		subscription: subscription,
		idempotency:  guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	target, note, err := render(eventType, envelope.Data)
	if errors.Is(err, errNotHandled) {
		c.logg.Debug(logCtx, "event not handled by notifications")
		return processResult{ack: true}
	}
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if _, err := c.fanout.Fanout(logCtx, target, note); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.logg.Warn(logCtx, "notification dropped, invalid request")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "notification fanout failed", err)
		_ = c.idempotency.Delete(ctx, ConsumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

var errNotHandled = errors.New("event not handled")

// render maps a domain event to its recipients and message.
func render(eventType enums.OutboxEventType, data json.RawMessage) (Target, Notification, error) {
	switch eventType {
	case enums.EventPaymentSubmitted:
		var p payloads.PaymentSubmittedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Target{}, Notification{}, err
		}
		return Target{Admins: true}, Notification{
			Title: "New payment to review",
			Body:  fmt.Sprintf("Owner %d paid %s %s for plan %s.", p.OwnerID, p.Amount.StringFixed(2), p.Currency, p.PlanCode),
			Data:  map[string]string{"type": string(eventType), "payment_id": strconv.FormatUint(p.PaymentID, 10)},
		}, nil

	case enums.EventPaymentApproved, enums.EventPaymentRejected:
		var p payloads.PaymentDecidedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Target{}, Notification{}, err
		}
		if p.OwnerID == 0 {
			return Target{}, Notification{}, errors.New("owner id missing")
		}
		n := Notification{
			Title: "Payment approved",
			Body:  fmt.Sprintf("Your %s plan is now active.", p.PlanCode),
			Data:  map[string]string{"type": string(eventType), "payment_id": strconv.FormatUint(p.PaymentID, 10)},
		}
		if eventType == enums.EventPaymentRejected {
			n.Title = "Payment rejected"
			n.Body = fmt.Sprintf("Your payment for the %s plan was rejected.", p.PlanCode)
			if p.Note != "" {
				n.Body += " Reason: " + p.Note
			}
		}
		return Target{PrincipalIDs: []uint64{p.OwnerID}}, n, nil

	case enums.EventSubscriptionPromoted:
		var p payloads.SubscriptionPromotedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Target{}, Notification{}, err
		}
		if p.PaymentID == nil {
			return Target{}, Notification{}, errNotHandled
		}
		return Target{Admins: true}, Notification{
			Title: "New subscription",
			Body:  fmt.Sprintf("Owner %d is now on the %s plan.", p.OwnerID, p.PlanCode),
			Data:  map[string]string{"type": string(eventType), "subscription_id": strconv.FormatUint(p.SubscriptionID, 10)},
		}, nil

	case enums.EventSubscriptionExpired:
		var p payloads.SubscriptionExpiredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Target{}, Notification{}, err
		}
		return Target{PrincipalIDs: []uint64{p.OwnerID}}, Notification{
			Title: "Plan expired",
			Body:  fmt.Sprintf("Your %s plan expired. You are back on the free plan.", p.PlanCode),
			Data:  map[string]string{"type": string(eventType)},
		}, nil

	case enums.EventNotificationRequested:
		var p payloads.NotificationRequestedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Target{}, Notification{}, err
		}
		target := Target{PrincipalIDs: p.PrincipalIDs}
		switch p.Audience {
		case "all":
			target.All = true
		case "admins":
			target.Admins = true
		}
		return target, Notification{Title: p.Title, Body: p.Body, Data: p.Data}, nil
	}
	return Target{}, Notification{}, errNotHandled
}
