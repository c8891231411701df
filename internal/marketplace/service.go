// Package marketplace lets owners offer cocks for sale. Listings are not
// quota-tracked.
package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
)

// ReasonListingOpen tags a create refused because the cock is already listed.
const ReasonListingOpen = "LISTING_OPEN"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Currency          string
	Logger            *logger.Logger
}

type Service struct {
	repo     Repository
	tx       txRunner
	currency string
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("marketplace repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &Service{repo: params.Repo, tx: params.TransactionRunner, currency: currency, logg: params.Logger}, nil
}

type CreateInput struct {
	CockID      uint64
	Price       decimal.Decimal
	Currency    string
	Description *string
}

// Patch updates a listing. A nil field is left unchanged.
type Patch struct {
	Price       *decimal.Decimal
	Description *string
	State       *enums.ListingState
}

type BrowsePage struct {
	Items      []ListingView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Create lists one of the owner's cocks. A cock has at most one open
// (for sale or paused) listing and a sold cock cannot be listed again.
func (s *Service) Create(ctx context.Context, ownerID uint64, in CreateInput) (*models.MarketplaceListing, error) {
	if !in.Price.IsPositive() {
		return nil, errValidation("price", "price must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	listing := &models.MarketplaceListing{
		OwnerID:     ownerID,
		CockID:      in.CockID,
		Price:       in.Price.Round(2),
		Currency:    currency,
		Description: trimmed(in.Description),
		State:       enums.ListingStateForSale,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cock, err := repo.FindCock(ctx, ownerID, in.CockID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cock")
		}
		if cock == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cock not found")
		}
		if cock.Status == enums.CockStatusSold {
			return pkgerrors.New(pkgerrors.CodeConflict, "cock already sold")
		}
		open, err := repo.HasOpenListing(ctx, in.CockID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open listing")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "cock already listed").
				WithReason(ReasonListingOpen).
				WithDetails(map[string]any{"cock_id": in.CockID})
		}
		if err := repo.Create(ctx, listing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create listing")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Update applies patch. State moves between for_sale and paused freely;
// sold is terminal and marks the cock sold in the same transaction.
func (s *Service) Update(ctx context.Context, ownerID, id uint64, patch Patch) (*models.MarketplaceListing, error) {
	var listing *models.MarketplaceListing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindForUpdate(ctx, ownerID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		if found.State == enums.ListingStateSold {
			return pkgerrors.New(pkgerrors.CodeConflict, "listing already sold")
		}
		if patch.Price != nil {
			if !patch.Price.IsPositive() {
				return errValidation("price", "price must be positive")
			}
			found.Price = patch.Price.Round(2)
		}
		if patch.Description != nil {
			found.Description = trimmed(patch.Description)
		}
		sold := false
		if patch.State != nil {
			if !patch.State.IsValid() {
				return errValidation("state", "unknown listing state")
			}
			sold = *patch.State == enums.ListingStateSold
			found.State = *patch.State
		}
		if err := repo.Save(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save listing")
		}
		if sold {
			if err := repo.MarkCockSold(ctx, ownerID, found.CockID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark cock sold")
			}
		}
		listing = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil && listing.State == enums.ListingStateSold {
		logCtx := s.logg.WithFields(ctx, map[string]any{"listing_id": listing.ID, "cock_id": listing.CockID})
		s.logg.Info(logCtx, "listing sold")
	}
	return listing, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id uint64) error {
	deleted, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete listing")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return nil
}

// Get returns any listing that is for sale, or one of the caller's own
// listings in any state.
func (s *Service) Get(ctx context.Context, callerID, id uint64) (*ListingView, error) {
	view, err := s.repo.View(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	if view == nil || (view.OwnerID != callerID && view.State != enums.ListingStateForSale) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return view, nil
}

func (s *Service) ListMine(ctx context.Context, ownerID uint64, state *enums.ListingState) ([]ListingView, error) {
	if state != nil && !state.IsValid() {
		return nil, errValidation("state", "unknown listing state")
	}
	rows, err := s.repo.ListOwned(ctx, ownerID, state)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list listings")
	}
	return rows, nil
}

// Browse pages through other owners' listings that are for sale, newest first.
func (s *Service) Browse(ctx context.Context, callerID uint64, params pagination.Params) (*BrowsePage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.Browse(ctx, callerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "browse listings")
	}
	items, next := pagination.Page(rows, params.Limit, func(v ListingView) (time.Time, uint64) { return v.CreatedAt, v.ID })
	return &BrowsePage{Items: items, NextCursor: next}, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func errValidation(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"field": field})
}
