package marketplace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gallotrack-backend/internal/repo"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
)

// ListingView is a listing joined with the cock it offers.
type ListingView struct {
	ID          uint64             `json:"id"`
	OwnerID     uint64             `json:"owner_id"`
	CockID      uint64             `json:"cock_id"`
	CockName    string             `json:"cock_name"`
	CockCode    string             `json:"cock_code"`
	ImageURL    string             `json:"image_url,omitempty"`
	Price       decimal.Decimal    `json:"price"`
	Currency    string             `json:"currency"`
	Description *string            `json:"description,omitempty"`
	State       enums.ListingState `json:"state"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCock(ctx context.Context, ownerID, cockID uint64) (*models.Cock, error)
	HasOpenListing(ctx context.Context, cockID uint64) (bool, error)
	Create(ctx context.Context, listing *models.MarketplaceListing) error
	FindForUpdate(ctx context.Context, ownerID, id uint64) (*models.MarketplaceListing, error)
	Save(ctx context.Context, listing *models.MarketplaceListing) error
	MarkCockSold(ctx context.Context, ownerID, cockID uint64) error
	Delete(ctx context.Context, ownerID, id uint64) (bool, error)
	View(ctx context.Context, id uint64) (*ListingView, error)
	ListOwned(ctx context.Context, ownerID uint64, state *enums.ListingState) ([]ListingView, error)
	Browse(ctx context.Context, excludeOwner uint64, cursor *pagination.Cursor, limit int) ([]ListingView, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindCock(ctx context.Context, ownerID, cockID uint64) (*models.Cock, error) {
	var cock models.Cock
	found, err := repo.First(r.Owned(ctx, ownerID).Where("id = ?", cockID), &cock)
	if err != nil || !found {
		return nil, err
	}
	return &cock, nil
}

func (r *repository) HasOpenListing(ctx context.Context, cockID uint64) (bool, error) {
	var n int64
	err := r.DB(ctx).
		Model(&models.MarketplaceListing{}).
		Where("cock_id = ? AND state IN ?", cockID, []enums.ListingState{enums.ListingStateForSale, enums.ListingStatePaused}).
		Count(&n).Error
	return n > 0, err
}

func (r *repository) Create(ctx context.Context, listing *models.MarketplaceListing) error {
	return r.DB(ctx).Create(listing).Error
}

func (r *repository) FindForUpdate(ctx context.Context, ownerID, id uint64) (*models.MarketplaceListing, error) {
	var listing models.MarketplaceListing
	q := r.Owned(ctx, ownerID).Where("id = ?", id)
	if q.Dialector != nil && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	found, err := repo.First(q, &listing)
	if err != nil || !found {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) Save(ctx context.Context, listing *models.MarketplaceListing) error {
	return r.DB(ctx).Save(listing).Error
}

func (r *repository) MarkCockSold(ctx context.Context, ownerID, cockID uint64) error {
	return r.Owned(ctx, ownerID).
		Model(&models.Cock{}).
		Where("id = ?", cockID).
		Update("status", enums.CockStatusSold).Error
}

func (r *repository) Delete(ctx context.Context, ownerID, id uint64) (bool, error) {
	res := r.Owned(ctx, ownerID).Where("id = ?", id).Delete(&models.MarketplaceListing{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) views(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Table("marketplace_listings AS l").
		Select(`l.id, l.owner_id, l.cock_id, c.name AS cock_name, c.code AS cock_code,
			c.principal_image_url AS image_url, l.price, l.currency, l.description, l.state,
			l.created_at, l.updated_at`).
		Joins("JOIN cocks AS c ON c.id = l.cock_id")
}

func (r *repository) View(ctx context.Context, id uint64) (*ListingView, error) {
	var rows []ListingView
	if err := r.views(ctx).Where("l.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) ListOwned(ctx context.Context, ownerID uint64, state *enums.ListingState) ([]ListingView, error) {
	q := r.views(ctx).Where("l.owner_id = ?", ownerID)
	if state != nil {
		q = q.Where("l.state = ?", *state)
	}
	var rows []ListingView
	err := q.Order("l.created_at DESC").Order("l.id DESC").Scan(&rows).Error
	return rows, err
}

func (r *repository) Browse(ctx context.Context, excludeOwner uint64, cursor *pagination.Cursor, limit int) ([]ListingView, error) {
	q := r.views(ctx).Where("l.state = ?", enums.ListingStateForSale)
	if excludeOwner != 0 {
		q = q.Where("l.owner_id <> ?", excludeOwner)
	}
	if cursor != nil {
		q = q.Where("(l.created_at < ?) OR (l.created_at = ? AND l.id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []ListingView
	err := q.Order("l.created_at DESC").Order("l.id DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}
