package quota

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// CockRef is the slice of a cock needed for per-cock usage reports.
type CockRef struct {
	ID   uint64
	Name string
	Code string
}

// Repository derives usage counts. Nothing is cached; every call re-queries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountCocks(ctx context.Context, ownerID uint64) (int, error)
	CockOwned(ctx context.Context, ownerID, cockID uint64) (bool, error)
	CountForCock(ctx context.Context, kind enums.ResourceKind, cockID uint64) (int, error)
	CountsByCock(ctx context.Context, kind enums.ResourceKind, ownerID uint64) (map[uint64]int, error)
	ListCocks(ctx context.Context, ownerID uint64) ([]CockRef, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func recordModel(kind enums.ResourceKind) any {
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

func (r *repository) CountCocks(ctx context.Context, ownerID uint64) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Cock{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return int(n), err
}

func (r *repository) CockOwned(ctx context.Context, ownerID, cockID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Where("id = ? AND owner_id = ?", cockID, ownerID).
		Count(&n).Error
	return n > 0, err
}

func (r *repository) CountForCock(ctx context.Context, kind enums.ResourceKind, cockID uint64) (int, error) {
	model := recordModel(kind)
	if model == nil {
		return 0, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Model(model).Where("cock_id = ?", cockID).Count(&n).Error
	return int(n), err
}

func (r *repository) CountsByCock(ctx context.Context, kind enums.ResourceKind, ownerID uint64) (map[uint64]int, error) {
	model := recordModel(kind)
	out := map[uint64]int{}
	if model == nil {
		return out, nil
	}
	owned := r.db.Model(&models.Cock{}).Select("id").Where("owner_id = ?", ownerID)

	var rows []struct {
		CockID uint64
		N      int
	}
	err := r.db.WithContext(ctx).
		Model(model).
		Select("cock_id, COUNT(*) AS n").
		Where("cock_id IN (?)", owned).
		Group("cock_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CockID] = row.N
	}
	return out, nil
}

func (r *repository) ListCocks(ctx context.Context, ownerID uint64) ([]CockRef, error) {
	var refs []CockRef
	err := r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Select("id, name, code").
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Scan(&refs).Error
	return refs, err
}
