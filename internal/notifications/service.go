package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
	"github.com/angelmondragon/gallotrack-backend/pkg/push"
)

const maxTokenLength = 4096

type pusher interface {
	Send(ctx context.Context, m push.Message) (push.Result, error)
}

// Target selects recipients. All overrides the other fields.
type Target struct {
	PrincipalIDs []uint64
	Admins       bool
	All          bool
}

func (t Target) empty() bool {
	return !t.All && !t.Admins && len(t.PrincipalIDs) == 0
}

// Notification is the user-visible content of a push.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Summary is the aggregate delivery outcome of one fanout.
type Summary struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	Invalidated  int `json:"invalidated"`
}

type ServiceParams struct {
	Repo    Repository
	Push    pusher
	Metrics *metrics.FanoutMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service owns device registrations and push fanout.
type Service struct {
	repo    Repository
	push    pusher
	metrics *metrics.FanoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("device token repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		push:    params.Push,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

func (s *Service) RegisterDeviceToken(ctx context.Context, principalID uint64, token string, platform enums.DevicePlatform) (*models.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if principalID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "principal is required")
	}
	if token == "" || len(token) > maxTokenLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid device token").
			WithDetails(map[string]any{"field": "token"})
	}
	if !platform.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid platform").
			WithDetails(map[string]any{"field": "platform"})
	}
	row, err := s.repo.Upsert(ctx, principalID, token, platform, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register device token")
	}
	return row, nil
}

// UnregisterDeviceToken deactivates the principal's token. Unknown tokens
// are not an error.
func (s *Service) UnregisterDeviceToken(ctx context.Context, principalID uint64, token string) error {
	if _, err := s.repo.Deactivate(ctx, principalID, strings.TrimSpace(token)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unregister device token")
	}
	return nil
}

// Fanout pushes n to every active token of target. Delivery failures are
// counted, not returned; tokens the provider reports as permanently invalid
// are deactivated.
func (s *Service) Fanout(ctx context.Context, target Target, n Notification) (*Summary, error) {
	if target.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification target is empty")
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification title is required").
			WithDetails(map[string]any{"field": "title"})
	}
	tokens, err := s.repo.ActiveTokens(ctx, target)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve device tokens")
	}
	summary := &Summary{}
	if len(tokens) == 0 {
		return summary, nil
	}
	if s.logg != nil {
		ctx = s.logg.WithProvider(ctx, "fcm")
	}

	if s.push == nil {
		summary.FailureCount = len(tokens)
		s.warn(ctx, "push provider not configured, notification dropped")
		s.metrics.Observe(0, summary.FailureCount, 0)
		return summary, nil
	}

	res, err := s.push.Send(ctx, push.Message{Tokens: tokens, Title: n.Title, Body: n.Body, Data: n.Data})
	if err != nil {
		if errors.Is(err, push.ErrUnavailable) {
			res.Failure = len(tokens)
		}
		if s.logg != nil {
			s.logg.Error(ctx, "push delivery failed", err)
		}
	}
	summary.SuccessCount = res.Success
	summary.FailureCount = res.Failure

	if len(res.Invalid) > 0 {
		deactivated, err := s.repo.DeactivateTokens(ctx, res.Invalid)
		if err != nil && s.logg != nil {
			s.logg.Error(ctx, "deactivate invalid tokens failed", err)
		}
		summary.Invalidated = int(deactivated)
	}

	s.metrics.Observe(summary.SuccessCount, summary.FailureCount, summary.Invalidated)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tokens":      len(tokens),
			"success":     summary.SuccessCount,
			"failure":     summary.FailureCount,
			"invalidated": summary.Invalidated,
		})
		s.logg.Info(logCtx, "notification fanned out")
	}
	return summary, nil
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
