package records

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/repo"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
)

// Repository persists trainings, fights and vaccines. Every query is scoped
// by owner.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record any) error
	ListTrainings(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Training, error)
	ListFights(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Fight, error)
	ListVaccines(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Vaccine, error)
	VaccinesDueBetween(ctx context.Context, ownerID uint64, from, to time.Time) ([]models.Vaccine, error)
	FightResults(ctx context.Context, ownerID, cockID uint64) (map[string]int, error)
	MediaStorageID(ctx context.Context, kind enums.ResourceKind, ownerID, id uint64) (string, bool, error)
	Delete(ctx context.Context, kind enums.ResourceKind, ownerID, id uint64) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a records repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func modelFor(kind enums.ResourceKind) any {
	switch kind {
	case enums.ResourceTrainings:
		return &models.Training{}
	case enums.ResourceFights:
		return &models.Fight{}
	case enums.ResourceVaccines:
		return &models.Vaccine{}
	default:
		return nil
	}
}

func (r *repository) Create(ctx context.Context, record any) error {
	return r.DB(ctx).Create(record).Error
}

// page orders newest first and resumes strictly after cursor.
func (r *repository) page(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) *gorm.DB {
	q := r.Owned(ctx, ownerID).Where("cock_id = ?", cockID)
	if cursor != nil {
		q = q.Where("(occurred_at < ?) OR (occurred_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	return q.Order("occurred_at DESC").Order("id DESC").Limit(limit)
}

func (r *repository) ListTrainings(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Training, error) {
	var rows []models.Training
	err := r.page(ctx, ownerID, cockID, cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListFights(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Fight, error) {
	var rows []models.Fight
	err := r.page(ctx, ownerID, cockID, cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListVaccines(ctx context.Context, ownerID, cockID uint64, cursor *pagination.Cursor, limit int) ([]models.Vaccine, error) {
	var rows []models.Vaccine
	err := r.page(ctx, ownerID, cockID, cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *repository) VaccinesDueBetween(ctx context.Context, ownerID uint64, from, to time.Time) ([]models.Vaccine, error) {
	var rows []models.Vaccine
	err := r.Owned(ctx, ownerID).
		Where("next_due_at IS NOT NULL AND next_due_at >= ? AND next_due_at < ?", from, to).
		Order("next_due_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FightResults(ctx context.Context, ownerID, cockID uint64) (map[string]int, error) {
	var rows []struct {
		Result string
		N      int
	}
	err := r.Owned(ctx, ownerID).
		Model(&models.Fight{}).
		Select("result, COUNT(*) AS n").
		Where("cock_id = ?", cockID).
		Group("result").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Result] = row.N
	}
	return out, nil
}

func (r *repository) MediaStorageID(ctx context.Context, kind enums.ResourceKind, ownerID, id uint64) (string, bool, error) {
	model := modelFor(kind)
	if model == nil {
		return "", false, nil
	}
	var row struct {
		MediaStorageID string
	}
	found, err := repo.First(r.Owned(ctx, ownerID).Model(model).Select("media_storage_id").Where("id = ?", id), &row)
	if err != nil || !found {
		return "", found, err
	}
	return row.MediaStorageID, true, nil
}

func (r *repository) Delete(ctx context.Context, kind enums.ResourceKind, ownerID, id uint64) (bool, error) {
	model := modelFor(kind)
	if model == nil {
		return false, nil
	}
	res := r.Owned(ctx, ownerID).Where("id = ?", id).Delete(model)
	return res.RowsAffected > 0, res.Error
}
