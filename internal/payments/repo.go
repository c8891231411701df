package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Repository persists pending payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.PendingPayment) error
	FindByID(ctx context.Context, id uint64) (*models.PendingPayment, error)
	FindForUpdate(ctx context.Context, id uint64) (*models.PendingPayment, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PendingPayment, error)
	FindOpenForPlan(ctx context.Context, ownerID uint64, planCode string, method enums.PaymentMethod) (*models.PendingPayment, error)
	Save(ctx context.Context, payment *models.PendingPayment) error
	ListByStates(ctx context.Context, states []enums.PaymentState, limit int) ([]models.PendingPayment, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]models.PendingPayment, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.PendingPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.PendingPayment, error) {
	return first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindForUpdate row-locks the payment on Postgres so two admins cannot
// decide it concurrently.
func (r *repository) FindForUpdate(ctx context.Context, id uint64) (*models.PendingPayment, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(q)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.PendingPayment, error) {
	q := r.db.WithContext(ctx).Where("external_id = ?", externalID)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(q)
}

// FindOpenForPlan returns the newest undecided payment the owner started for
// planCode with method that has not been linked to a processor id yet.
func (r *repository) FindOpenForPlan(ctx context.Context, ownerID uint64, planCode string, method enums.PaymentMethod) (*models.PendingPayment, error) {
	q := r.db.WithContext(ctx).
		Where("owner_id = ? AND plan_code = ? AND method = ?", ownerID, planCode, method).
		Where("state IN ?", []enums.PaymentState{enums.PaymentStatePending, enums.PaymentStateVerifying}).
		Where("external_id IS NULL").
		Order("created_at DESC").
		Order("id DESC")
	return first(q)
}

func (r *repository) Save(ctx context.Context, payment *models.PendingPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) ListByStates(ctx context.Context, states []enums.PaymentState, limit int) ([]models.PendingPayment, error) {
	var out []models.PendingPayment
	q := r.db.WithContext(ctx).Where("state IN ?", states).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uint64) ([]models.PendingPayment, error) {
	var out []models.PendingPayment
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func first(q *gorm.DB) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := q.First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
