package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/payloads"
)

// ReasonPlanUnknown tags promotions that name a plan missing from the catalogue.
const ReasonPlanUnknown = "PLAN_UNKNOWN"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	// Outbox is optional. When set, expiries emit subscription_expired.
	Outbox eventEmitter
	Now    func() time.Time
}

// Service owns the plan catalogue and subscription lifecycle.
type Service struct {
	repo   Repository
	tx     txRunner
	logg   *logger.Logger
	outbox eventEmitter
	now    func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		logg:   params.Logger,
		outbox: params.Outbox,
		now:    now,
	}, nil
}

// Today is the service clock truncated to a calendar day.
func (s *Service) Today() time.Time {
	return Today(s.now())
}

func (s *Service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return plans, nil
}

// Plan returns the catalogue row for code or a PlanUnknown error.
func (s *Service) Plan(ctx context.Context, code string) (*models.Plan, error) {
	plan, err := s.repo.FindPlanByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, PlanUnknown(code)
	}
	return plan, nil
}

// GetActive returns the owner's active subscription or nil when there is none.
func (s *Service) GetActive(ctx context.Context, ownerID uint64) (*models.Subscription, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, ownerID, s.Today())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
	}
	return sub, nil
}

func (s *Service) History(ctx context.Context, ownerID uint64) ([]models.Subscription, error) {
	subs, err := s.repo.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}
	return subs, nil
}

// Promote replaces the owner's active subscription with a fresh grant of
// planCode. It runs on tx when one is supplied so callers can commit the
// promotion together with their own writes; otherwise it opens its own
// transaction.
func (s *Service) Promote(ctx context.Context, tx *gorm.DB, ownerID uint64, planCode string, paymentID *uint64) (*models.Subscription, error) {
	if tx != nil {
		return s.promote(ctx, s.repo.WithTx(tx), ownerID, planCode, paymentID)
	}
	var out *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub, err := s.promote(ctx, s.repo.WithTx(tx), ownerID, planCode, paymentID)
		if err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) promote(ctx context.Context, repo Repository, ownerID uint64, planCode string, paymentID *uint64) (*models.Subscription, error) {
	code := strings.ToLower(strings.TrimSpace(planCode))
	if ownerID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}

	if _, err := repo.DeactivateActive(ctx, ownerID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate subscriptions")
	}

	plan, err := repo.FindPlanByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, PlanUnknown(planCode)
	}

	sub := newGrant(plan, ownerID, s.Today(), paymentID)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOwnerID(ctx, ownerID)
		logCtx = s.logg.WithField(logCtx, "plan_code", plan.Code)
		s.logg.Info(logCtx, "subscription promoted")
	}
	return sub, nil
}

// EnsureGratis grants the perpetual gratis plan when the owner has no active
// subscription. An existing active grant is returned untouched.
func (s *Service) EnsureGratis(ctx context.Context, tx *gorm.DB, ownerID uint64) (*models.Subscription, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	current, err := repo.FindActiveSubscription(ctx, ownerID, s.Today())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
	}
	if current != nil {
		return current, nil
	}
	return s.Promote(ctx, tx, ownerID, PlanGratis, nil)
}

// ExpireLapsed marks grants past their end date as expired and falls each
// affected owner back to gratis. It returns the number of owners handled.
func (s *Service) ExpireLapsed(ctx context.Context, limit int) (int, error) {
	handled := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lapsed, err := s.repo.WithTx(tx).ExpireLapsed(ctx, s.Today(), limit)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire subscriptions")
		}
		seen := make(map[uint64]struct{}, len(lapsed))
		for _, sub := range lapsed {
			if s.outbox != nil {
				event := outbox.DomainEvent{
					EventType:     enums.EventSubscriptionExpired,
					AggregateType: enums.AggregateSubscription,
					AggregateID:   sub.ID,
					Data:          payloads.SubscriptionExpiredEvent{OwnerID: sub.OwnerID, PlanCode: sub.PlanCode},
				}
				if err := s.outbox.Emit(ctx, tx, event); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription expired")
				}
			}
			if _, ok := seen[sub.OwnerID]; ok {
				continue
			}
			seen[sub.OwnerID] = struct{}{}
			if _, err := s.EnsureGratis(ctx, tx, sub.OwnerID); err != nil {
				return err
			}
		}
		handled = len(seen)
		return nil
	})
	return handled, err
}

// PlanUnknown builds the error returned when planCode is not in the catalogue.
func PlanUnknown(planCode string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown plan").
		WithReason(ReasonPlanUnknown).
		WithDetails(map[string]any{"plan_code": planCode})
}

func newGrant(plan *models.Plan, ownerID uint64, today time.Time, paymentID *uint64) *models.Subscription {
	sub := &models.Subscription{
		OwnerID:   ownerID,
		PlanCode:  plan.Code,
		PlanName:  plan.Name,
		Price:     plan.Price,
		Status:    enums.SubscriptionStatusActive,
		StartDate: today,
		Limits:    plan.Limits,
		PaymentID: paymentID,
	}
	if !plan.Perpetual() {
		end := today.AddDate(0, 0, *plan.DurationDays)
		sub.EndDate = &end
	}
	return sub
}
