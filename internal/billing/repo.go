package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Repository handles plan catalogue and subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListPlans(ctx context.Context) ([]models.Plan, error)
	FindPlanByCode(ctx context.Context, code string) (*models.Plan, error)
	FindActiveSubscription(ctx context.Context, ownerID uint64, day time.Time) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID uint64) ([]models.Subscription, error)
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	DeactivateActive(ctx context.Context, ownerID uint64) (int64, error)
	ExpireLapsed(ctx context.Context, day time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Order("display_order ASC").
		Order("id ASC").
		Find(&plans).Error
	return plans, err
}

func (r *repository) FindPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindActiveSubscription(ctx context.Context, ownerID uint64, day time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, enums.SubscriptionStatusActive).
		Where("(end_date IS NULL OR end_date >= ?)", day).
		Order("start_date DESC").
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptions(ctx context.Context, ownerID uint64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id DESC").
		Find(&subs).Error
	return subs, err
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) DeactivateActive(ctx context.Context, ownerID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("owner_id = ? AND status = ?", ownerID, enums.SubscriptionStatusActive).
		Update("status", enums.SubscriptionStatusInactive)
	return res.RowsAffected, res.Error
}

// ExpireLapsed flips active subscriptions whose end date is before day to
// expired and returns the flipped rows with their owner and plan.
func (r *repository) ExpireLapsed(ctx context.Context, day time.Time, limit int) ([]models.Subscription, error) {
	var lapsed []models.Subscription
	q := r.db.WithContext(ctx).
		Select("id", "owner_id", "plan_code").
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", enums.SubscriptionStatusActive, day).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&lapsed).Error; err != nil {
		return nil, err
	}
	if len(lapsed) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(lapsed))
	for _, sub := range lapsed {
		ids = append(ids, sub.ID)
	}
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id IN ? AND status = ?", ids, enums.SubscriptionStatusActive).
		Update("status", enums.SubscriptionStatusExpired).Error
	if err != nil {
		return nil, err
	}
	return lapsed, nil
}
