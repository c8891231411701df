package notifications

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
)

// Broadcast audiences.
const (
	AudienceAll        = "all"
	AudienceAdmins     = "admins"
	AudiencePrincipals = "principals"
)

const (
	maxTitleLength = 120
	maxBodyLength  = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// BroadcastInput is an admin-authored push.
type BroadcastInput struct {
	Audience     string
	PrincipalIDs []uint64
	Title        string
	Body         string
	Data         map[string]string
}

// Broadcaster queues admin pushes through the outbox so delivery happens on
// the notification worker, never on the request path.
type Broadcaster struct {
	tx     txRunner
	events eventEmitter
	logg   *logger.Logger
}

func NewBroadcaster(tx txRunner, events eventEmitter, logg *logger.Logger) (*Broadcaster, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if events == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Broadcaster{tx: tx, events: events, logg: logg}, nil
}

func (b *Broadcaster) Request(ctx context.Context, adminID uint64, in BroadcastInput) error {
	in.Audience = strings.ToLower(strings.TrimSpace(in.Audience))
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)

	switch in.Audience {
	case AudienceAll, AudienceAdmins:
		in.PrincipalIDs = nil
	case AudiencePrincipals:
		if len(in.PrincipalIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "principal ids required").
				WithDetails(map[string]any{"field": "principal_ids"})
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid audience").
			WithDetails(map[string]any{"field": "audience"})
	}
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid title").
			WithDetails(map[string]any{"field": "title"})
	}
	if len(in.Body) > maxBodyLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "body too long").
			WithDetails(map[string]any{"field": "body"})
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateBroadcast,
		AggregateID:   adminID,
		Actor:         &outbox.ActorRef{PrincipalID: adminID, Role: "admin"},
		Data: payloads.NotificationRequestedEvent{
			Audience:     in.Audience,
			PrincipalIDs: in.PrincipalIDs,
			Title:        in.Title,
			Body:         in.Body,
			Data:         in.Data,
		},
	}
	err := b.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return b.events.Emit(ctx, tx, event)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue broadcast")
	}
	if b.logg != nil {
		b.logg.Info(b.logg.WithFields(ctx, map[string]any{"audience": in.Audience, "admin_id": adminID}), "broadcast queued")
	}
	return nil
}
