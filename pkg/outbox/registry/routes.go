// Package registry decides how each gallotrack outbox row is delivered:
// which topic it goes to, who it is for, and which Pub/Sub attributes
// consumers can filter on.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
)

// ErrRejected marks rows that can never be published. The relay parks them.
var ErrRejected = errors.New("outbox row rejected")

// Audience names who a push consumer should alert for an event. Events with
// no audience only feed analytics.
type Audience string

const (
	AudienceAdmins Audience = "admins"
	AudienceOwner  Audience = "owner"
)

type route struct {
	aggregate enums.OutboxAggregateType
	audience  Audience
	// ordered events share a Pub/Sub ordering key per aggregate, so a
	// payment's submission is always seen before its decision.
	ordered bool
	decode  func(json.RawMessage) (any, error)
}

var routes = map[enums.OutboxEventType]route{
	enums.EventPaymentSubmitted: {
		aggregate: enums.AggregatePendingPayment,
		audience:  AudienceAdmins,
		ordered:   true,
		decode:    decodeAs[payloads.PaymentSubmittedEvent],
	},
	enums.EventPaymentApproved: {
		aggregate: enums.AggregatePendingPayment,
		audience:  AudienceOwner,
		ordered:   true,
		decode:    decodeAs[payloads.PaymentDecidedEvent],
	},
	enums.EventPaymentRejected: {
		aggregate: enums.AggregatePendingPayment,
		audience:  AudienceOwner,
		ordered:   true,
		decode:    decodeAs[payloads.PaymentDecidedEvent],
	},
	enums.EventSubscriptionPromoted: {
		aggregate: enums.AggregateSubscription,
		ordered:   true,
		decode:    decodeAs[payloads.SubscriptionPromotedEvent],
	},
	enums.EventSubscriptionExpired: {
		aggregate: enums.AggregateSubscription,
		ordered:   true,
		decode:    decodeAs[payloads.SubscriptionExpiredEvent],
	},
	enums.EventNotificationRequested: {
		aggregate: enums.AggregateBroadcast,
		decode:    decodeAs[payloads.NotificationRequestedEvent],
	},
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Message is an outbox row ready to hand to Pub/Sub. Data is the stored
// envelope, unchanged.
type Message struct {
	Topic       string
	OrderingKey string
	Attributes  map[string]string
	Data        []byte
	Envelope    outbox.PayloadEnvelope
	Payload     any
}

// Router turns outbox rows into Messages for the notification topic.
type Router struct {
	topic string
}

func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	topic := strings.TrimSpace(cfg.NotificationTopic)
	if topic == "" {
		return nil, errors.New("notification topic is required")
	}
	return &Router{topic: topic}, nil
}

// Route validates row against the event table and decodes its payload.
// Every error it returns wraps ErrRejected.
func (r *Router) Route(row models.OutboxEvent) (*Message, error) {
	rt, ok := routes[row.EventType]
	if !ok {
		return nil, reject("unsupported event type %s", row.EventType)
	}
	if rt.aggregate != row.AggregateType {
		return nil, reject("%s belongs to %s aggregates, row says %s", row.EventType, rt.aggregate, row.AggregateType)
	}
	if row.AggregateID == 0 && row.AggregateType != enums.AggregateBroadcast {
		return nil, reject("%s row has no aggregate id", row.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, reject("decode envelope: %v", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, reject("%s row has no payload", row.EventType)
	}
	payload, err := rt.decode(data)
	if err != nil {
		return nil, reject("decode %s payload: %v", row.EventType, err)
	}

	msg := &Message{
		Topic:      r.topic,
		Attributes: attributes(row, envelope, rt, payload),
		Data:       row.Payload,
		Envelope:   envelope,
		Payload:    payload,
	}
	if rt.ordered {
		msg.OrderingKey = string(row.AggregateType) + ":" + strconv.FormatUint(row.AggregateID, 10)
	}
	return msg, nil
}

func attributes(row models.OutboxEvent, envelope outbox.PayloadEnvelope, rt route, payload any) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   strconv.FormatUint(row.AggregateID, 10),
	}
	if !envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	audience := rt.audience
	if req, ok := payload.(*payloads.NotificationRequestedEvent); ok {
		audience = Audience(req.Audience)
	}
	if audience != "" {
		attrs["audience"] = string(audience)
	}
	if owner := ownerOf(payload); owner != 0 {
		attrs["owner_id"] = strconv.FormatUint(owner, 10)
	}
	return attrs
}

func ownerOf(payload any) uint64 {
	switch p := payload.(type) {
	case *payloads.PaymentSubmittedEvent:
		return p.OwnerID
	case *payloads.PaymentDecidedEvent:
		return p.OwnerID
	case *payloads.SubscriptionPromotedEvent:
		return p.OwnerID
	case *payloads.SubscriptionExpiredEvent:
		return p.OwnerID
	}
	return 0
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
