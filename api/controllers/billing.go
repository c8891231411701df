package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/quota"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type PlanCatalog interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetActive(ctx context.Context, ownerID uint64) (*models.Subscription, error)
	History(ctx context.Context, ownerID uint64) ([]models.Subscription, error)
}

type QuotaReader interface {
	AdmissionCheck(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64) (quota.Decision, error)
	DescribeState(ctx context.Context, ownerID uint64) (*quota.LimitState, error)
}

func PlansList(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]planResponse, 0, len(plans))
		for i := range plans {
			out = append(out, newPlanResponse(&plans[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// SubscriptionCurrent returns the active grant, or null when none is active.
func SubscriptionCurrent(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.GetActive(r.Context(), middleware.PrincipalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func SubscriptionHistory(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.History(r.Context(), middleware.PrincipalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*subscriptionResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newSubscriptionResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func QuotaState(svc QuotaReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.DescribeState(r.Context(), middleware.PrincipalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// QuotaCheck answers whether one more record of ?kind= fits the plan.
// Per-cock kinds also need ?cock_id=. A denial is a 200 with allowed=false.
func QuotaCheck(svc QuotaReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := enums.ParseResourceKind(r.URL.Query().Get("kind"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid kind").WithDetails(map[string]any{"field": "kind"}))
			return
		}
		cockID, err := validators.ParseQueryUint(r, "cock_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if kind.PerCock() && cockID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cock_id is required").WithDetails(map[string]any{"field": "cock_id"}))
			return
		}
		decision, err := svc.AdmissionCheck(r.Context(), middleware.PrincipalIDFromContext(r.Context()), kind, cockID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}
