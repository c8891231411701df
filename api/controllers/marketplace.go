package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/marketplace"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
)

type MarketplaceService interface {
	Create(ctx context.Context, ownerID uint64, in marketplace.CreateInput) (*models.MarketplaceListing, error)
	Update(ctx context.Context, ownerID, id uint64, patch marketplace.Patch) (*models.MarketplaceListing, error)
	Delete(ctx context.Context, ownerID, id uint64) error
	Get(ctx context.Context, callerID, id uint64) (*marketplace.ListingView, error)
	ListMine(ctx context.Context, ownerID uint64, state *enums.ListingState) ([]marketplace.ListingView, error)
	Browse(ctx context.Context, callerID uint64, params pagination.Params) (*marketplace.BrowsePage, error)
}

type createListingRequest struct {
	CockID      uint64          `json:"cock_id" validate:"required,gt=0"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
}

type updateListingRequest struct {
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	State       *string          `json:"state" validate:"omitempty,max=20"`
}

func ListingCreate(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Create(r.Context(), middleware.PrincipalIDFromContext(r.Context()), marketplace.CreateInput{
			CockID:      body.CockID,
			Price:       body.Price,
			Currency:    body.Currency,
			Description: body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newListingResponse(listing))
	}
}

func ListingUpdate(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		patch := marketplace.Patch{Price: body.Price, Description: body.Description}
		if body.State != nil {
			state, err := enums.ParseListingState(*body.State)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid state").WithDetails(map[string]any{"field": "state"}))
				return
			}
			patch.State = &state
		}
		listing, err := svc.Update(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingResponse(listing))
	}
}

func ListingDelete(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListingListMine(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var state *enums.ListingState
		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			parsed, err := enums.ParseListingState(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid state").WithDetails(map[string]any{"field": "state"}))
				return
			}
			state = &parsed
		}
		rows, err := svc.ListMine(r.Context(), middleware.PrincipalIDFromContext(r.Context()), state)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// MarketplaceBrowse pages through other owners' listings that are for sale.
func MarketplaceBrowse(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Browse(r.Context(), middleware.PrincipalIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func MarketplaceGet(svc MarketplaceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
