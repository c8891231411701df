package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gallotrack-backend/internal/billing"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
)

// Denial reasons carried on Decision.Reason and on the returned errors.
const (
	ReasonQuotaExceeded        = "QUOTA_EXCEEDED"
	ReasonNoActiveSubscription = "NO_ACTIVE_SUBSCRIPTION"
	ReasonCockForeign          = "COCK_FOREIGN"
)

type subscriptionSource interface {
	GetActive(ctx context.Context, ownerID uint64) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the quota service.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionSource
	Metrics       *metrics.QuotaMetrics
	Logger        *logger.Logger
}

// Service answers admission checks against the owner's active subscription.
type Service struct {
	repo    Repository
	subs    subscriptionSource
	metrics *metrics.QuotaMetrics
	logg    *logger.Logger
}

// NewService builds a quota service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription source is required")
	}
	return &Service{
		repo:    params.Repo,
		subs:    params.Subscriptions,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed         bool               `json:"allowed"`
	Kind            enums.ResourceKind `json:"kind"`
	CockID          *uint64            `json:"cock_id,omitempty"`
	Cap             int                `json:"cap"`
	Used            int                `json:"used"`
	Remaining       *int               `json:"remaining,omitempty"`
	PlanCode        string             `json:"plan_code,omitempty"`
	RecommendedPlan string             `json:"recommended_plan,omitempty"`
	Reason          string             `json:"reason,omitempty"`
}

// ExceededDetails is the machine-readable payload of a quota denial.
type ExceededDetails struct {
	Kind            enums.ResourceKind `json:"kind"`
	CockID          *uint64            `json:"cock_id,omitempty"`
	Cap             int                `json:"cap"`
	Used            int                `json:"used"`
	RecommendedPlan string             `json:"recommended_plan,omitempty"`
}

// Err converts a denial into the typed error callers surface. Allowed
// decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonCockForeign:
		return pkgerrors.New(pkgerrors.CodeForbidden, "cock does not belong to owner").
			WithReason(ReasonCockForeign)
	case ReasonNoActiveSubscription:
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "no active subscription").
			WithReason(ReasonNoActiveSubscription).
			WithDetails(ExceededDetails{Kind: d.Kind, CockID: d.CockID, RecommendedPlan: d.RecommendedPlan})
	default:
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, fmt.Sprintf("%s limit reached", d.Kind)).
			WithReason(ReasonQuotaExceeded).
			WithDetails(ExceededDetails{
				Kind:            d.Kind,
				CockID:          d.CockID,
				Cap:             d.Cap,
				Used:            d.Used,
				RecommendedPlan: d.RecommendedPlan,
			})
	}
}

// AdmissionCheck decides whether one more record of kind is admissible.
// cockID is required for per-cock kinds and ignored for cocks.
func (s *Service) AdmissionCheck(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64) (Decision, error) {
	return s.Admit(ctx, ownerID, kind, cockID, 1)
}

// Admit is AdmissionCheck for n records written together; it allows the
// write iff used+n stays within the cap.
func (s *Service) Admit(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64, n int) (Decision, error) {
	if !kind.IsValid() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown resource kind").
			WithDetails(map[string]any{"kind": kind})
	}
	if n < 1 {
		n = 1
	}
	decision := Decision{Kind: kind}
	if kind.PerCock() {
		if cockID == nil || *cockID == 0 {
			return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "cock_id is required").
				WithDetails(map[string]any{"field": "cock_id"})
		}
		id := *cockID
		decision.CockID = &id
	}

	sub, err := s.subs.GetActive(ctx, ownerID)
	if err != nil {
		return Decision{}, err
	}
	if sub == nil {
		decision.Reason = ReasonNoActiveSubscription
		decision.RecommendedPlan = billing.PlanGratis
		s.recordDenial(ctx, ownerID, decision)
		return decision, nil
	}
	decision.PlanCode = sub.PlanCode

	var used int
	if kind.PerCock() {
		owned, err := s.repo.CockOwned(ctx, ownerID, *decision.CockID)
		if err != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check cock ownership")
		}
		if !owned {
			decision.Reason = ReasonCockForeign
			s.recordDenial(ctx, ownerID, decision)
			return decision, nil
		}
		used, err = s.repo.CountForCock(ctx, kind, *decision.CockID)
		if err != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count records")
		}
	} else {
		used, err = s.repo.CountCocks(ctx, ownerID)
		if err != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count cocks")
		}
	}

	decision.Cap = CapFor(sub.Limits, kind)
	decision.Used = used
	remaining := decision.Cap - used
	if remaining < 0 {
		remaining = 0
	}
	decision.Remaining = &remaining
	decision.Allowed = used+n <= decision.Cap
	if !decision.Allowed {
		decision.Reason = ReasonQuotaExceeded
		decision.RecommendedPlan = billing.RecommendedUpgrade(sub.PlanCode)
		s.recordDenial(ctx, ownerID, decision)
	}
	return decision, nil
}

// Require runs Admit and returns the denial as an error.
func (s *Service) Require(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64, n int) error {
	decision, err := s.Admit(ctx, ownerID, kind, cockID, n)
	if err != nil {
		return err
	}
	return decision.Err()
}

func (s *Service) recordDenial(ctx context.Context, ownerID uint64, d Decision) {
	s.metrics.IncDenial(string(d.Kind), d.Reason)
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOwnerID(ctx, ownerID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"kind":   d.Kind,
		"reason": d.Reason,
		"cap":    d.Cap,
		"used":   d.Used,
	})
	s.logg.Info(logCtx, "admission denied")
}

// CapFor reads the cap for kind from a subscription's snapshot.
func CapFor(limits models.PlanLimits, kind enums.ResourceKind) int {
	switch kind {
	case enums.ResourceCocks:
		return limits.MaxCocks
	case enums.ResourceTrainings:
		return limits.MaxTrainingsPerCock
	case enums.ResourceFights:
		return limits.MaxFightsPerCock
	case enums.ResourceVaccines:
		return limits.MaxVaccinesPerCock
	default:
		return 0
	}
}

// Bucket is one usage counter against its cap.
type Bucket struct {
	ID    string `json:"id"`
	Used  int    `json:"used"`
	Cap   int    `json:"cap"`
	AtCap bool   `json:"at_cap"`
}

func newBucket(id string, used, limit int) Bucket {
	return Bucket{ID: id, Used: used, Cap: limit, AtCap: used >= limit}
}

// CockUsage breaks down the per-cock counters of one cock.
type CockUsage struct {
	CockID    uint64 `json:"cock_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Trainings Bucket `json:"trainings"`
	Fights    Bucket `json:"fights"`
	Vaccines  Bucket `json:"vaccines"`
}

// LimitState is the full usage snapshot shown to the owner.
type LimitState struct {
	OwnerID         uint64      `json:"owner_id"`
	HasSubscription bool        `json:"has_subscription"`
	PlanCode        string      `json:"plan_code,omitempty"`
	PlanName        string      `json:"plan_name,omitempty"`
	EndDate         *time.Time  `json:"end_date,omitempty"`
	RecommendedPlan string      `json:"recommended_plan,omitempty"`
	Cocks           Bucket      `json:"cocks"`
	PerCock         []CockUsage `json:"per_cock"`
	Saturated       []string    `json:"saturated"`
}

// BucketID names a usage bucket, e.g. "cocks" or "trainings_cock_42".
func BucketID(kind enums.ResourceKind, cockID uint64) string {
	if !kind.PerCock() {
		return string(kind)
	}
	return fmt.Sprintf("%s_cock_%d", kind, cockID)
}

// DescribeState aggregates every counter of the owner against the active
// caps. Without an active subscription all caps read as zero.
func (s *Service) DescribeState(ctx context.Context, ownerID uint64) (*LimitState, error) {
	sub, err := s.subs.GetActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	state := &LimitState{OwnerID: ownerID, PerCock: []CockUsage{}, Saturated: []string{}}
	var limits models.PlanLimits
	if sub != nil {
		state.HasSubscription = true
		state.PlanCode = sub.PlanCode
		state.PlanName = sub.PlanName
		state.EndDate = sub.EndDate
		limits = sub.Limits
	}

	cocks, err := s.repo.ListCocks(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cocks")
	}
	state.Cocks = newBucket(BucketID(enums.ResourceCocks, 0), len(cocks), limits.MaxCocks)
	if state.Cocks.AtCap {
		state.Saturated = append(state.Saturated, state.Cocks.ID)
	}

	counts := make(map[enums.ResourceKind]map[uint64]int, 3)
	for _, kind := range []enums.ResourceKind{enums.ResourceTrainings, enums.ResourceFights, enums.ResourceVaccines} {
		byCock, err := s.repo.CountsByCock(ctx, kind, ownerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count records")
		}
		counts[kind] = byCock
	}

	for _, cock := range cocks {
		usage := CockUsage{
			CockID:    cock.ID,
			Name:      cock.Name,
			Code:      cock.Code,
			Trainings: newBucket(BucketID(enums.ResourceTrainings, cock.ID), counts[enums.ResourceTrainings][cock.ID], limits.MaxTrainingsPerCock),
			Fights:    newBucket(BucketID(enums.ResourceFights, cock.ID), counts[enums.ResourceFights][cock.ID], limits.MaxFightsPerCock),
			Vaccines:  newBucket(BucketID(enums.ResourceVaccines, cock.ID), counts[enums.ResourceVaccines][cock.ID], limits.MaxVaccinesPerCock),
		}
		for _, b := range []Bucket{usage.Trainings, usage.Fights, usage.Vaccines} {
			if b.AtCap {
				state.Saturated = append(state.Saturated, b.ID)
			}
		}
		state.PerCock = append(state.PerCock, usage)
	}

	if sub != nil && len(state.Saturated) > 0 {
		state.RecommendedPlan = billing.RecommendedUpgrade(sub.PlanCode)
	}
	return state, nil
}
