package pedigree

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
)

// Repository persists cocks and their dependents. Every read is owner scoped.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, ownerID, id uint64) (*models.Cock, error)
	FindByIDs(ctx context.Context, ownerID uint64, ids []uint64) ([]models.Cock, error)
	FindForUpdate(ctx context.Context, ownerID, id uint64) (*models.Cock, error)
	CodeExists(ctx context.Context, ownerID uint64, code string, excludeID uint64) (bool, error)
	Create(ctx context.Context, cock *models.Cock) error
	SetCohortKey(ctx context.Context, id, key uint64) error
	SetParents(ctx context.Context, id uint64, sireID, damID *uint64) error
	Update(ctx context.Context, id uint64, fields map[string]any) error
	SaveMedia(ctx context.Context, cock *models.Cock) error
	List(ctx context.Context, ownerID uint64, filter ListFilter) ([]models.Cock, error)
	ListByCohort(ctx context.Context, ownerID, cohortKey uint64) ([]models.Cock, error)
	ListChildren(ctx context.Context, ownerID, ancestorID uint64) ([]models.Cock, error)
	DeleteCascade(ctx context.Context, ownerID, id uint64) (*Cascade, error)
}

// Cascade is what DeleteCascade removed, including the media handles that
// still need provider cleanup.
type Cascade struct {
	Result     DeleteResult
	StorageIDs []string
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pedigree repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) owned(ctx context.Context, ownerID uint64) *gorm.DB {
	return r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
}

func (r *repository) FindByID(ctx context.Context, ownerID, id uint64) (*models.Cock, error) {
	var cock models.Cock
	err := r.owned(ctx, ownerID).Where("id = ?", id).First(&cock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cock, nil
}

// FindForUpdate loads a cock and, on Postgres, row-locks it for the rest of
// the transaction so concurrent media edits do not drop gallery entries.
func (r *repository) FindForUpdate(ctx context.Context, ownerID, id uint64) (*models.Cock, error) {
	q := r.owned(ctx, ownerID).Where("id = ?", id)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var cock models.Cock
	err := q.First(&cock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cock, nil
}

func (r *repository) FindByIDs(ctx context.Context, ownerID uint64, ids []uint64) ([]models.Cock, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var cocks []models.Cock
	err := r.owned(ctx, ownerID).Where("id IN ?", ids).Find(&cocks).Error
	return cocks, err
}

func (r *repository) CodeExists(ctx context.Context, ownerID uint64, code string, excludeID uint64) (bool, error) {
	q := r.owned(ctx, ownerID).Model(&models.Cock{}).Where("code = ?", code)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) Create(ctx context.Context, cock *models.Cock) error {
	return r.db.WithContext(ctx).Create(cock).Error
}

func (r *repository) SetCohortKey(ctx context.Context, id, key uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Where("id = ?", id).
		Update("cohort_key", key).Error
}

func (r *repository) SetParents(ctx context.Context, id uint64, sireID, damID *uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Where("id = ?", id).
		Updates(map[string]any{"sire_id": sireID, "dam_id": damID}).Error
}

func (r *repository) Update(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) SaveMedia(ctx context.Context, cock *models.Cock) error {
	return r.db.WithContext(ctx).
		Model(&models.Cock{}).
		Where("id = ? AND owner_id = ?", cock.ID, cock.OwnerID).
		Updates(map[string]any{
			"principal_image_url":        cock.PrincipalImageURL,
			"principal_image_storage_id": cock.PrincipalImageStorageID,
			"auxiliary":                  cock.Auxiliary,
		}).Error
}

func (r *repository) List(ctx context.Context, ownerID uint64, filter ListFilter) ([]models.Cock, error) {
	q := r.owned(ctx, ownerID)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(code) LIKE ?)", like, like)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var cocks []models.Cock
	err := q.Order("id ASC").Limit(limit).Offset(filter.Offset).Find(&cocks).Error
	return cocks, err
}

// ListByCohort returns the whole family. Legacy roots stored without a cohort
// key are matched by their own id.
func (r *repository) ListByCohort(ctx context.Context, ownerID, cohortKey uint64) ([]models.Cock, error) {
	var cocks []models.Cock
	err := r.owned(ctx, ownerID).
		Where("(cohort_key = ? OR (cohort_key IS NULL AND id = ?))", cohortKey, cohortKey).
		Order("id ASC").
		Find(&cocks).Error
	return cocks, err
}

func (r *repository) ListChildren(ctx context.Context, ownerID, ancestorID uint64) ([]models.Cock, error) {
	var cocks []models.Cock
	err := r.owned(ctx, ownerID).
		Where("(sire_id = ? OR dam_id = ?)", ancestorID, ancestorID).
		Order("id ASC").
		Find(&cocks).Error
	return cocks, err
}

type mediaRow struct {
	ID             uint64
	MediaStorageID string
}

func (r *repository) DeleteCascade(ctx context.Context, ownerID, id uint64) (*Cascade, error) {
	cock, err := r.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if cock == nil {
		return nil, nil
	}

	out := &Cascade{Result: DeleteResult{CockID: id}}
	if cock.PrincipalImageStorageID != "" {
		out.StorageIDs = append(out.StorageIDs, cock.PrincipalImageStorageID)
	}
	for _, img := range cock.Auxiliary {
		if img.StorageID != "" && img.StorageID != cock.PrincipalImageStorageID {
			out.StorageIDs = append(out.StorageIDs, img.StorageID)
		}
	}

	dependents := []struct {
		model any
		ids   *[]uint64
	}{
		{&models.Training{}, &out.Result.Trainings},
		{&models.Fight{}, &out.Result.Fights},
		{&models.Vaccine{}, &out.Result.Vaccines},
	}
	for _, dep := range dependents {
		var rows []mediaRow
		if err := r.db.WithContext(ctx).Model(dep.model).
			Select("id, media_storage_id").
			Where("cock_id = ?", id).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			*dep.ids = append(*dep.ids, row.ID)
			if row.MediaStorageID != "" {
				out.StorageIDs = append(out.StorageIDs, row.MediaStorageID)
			}
		}
		if err := r.db.WithContext(ctx).Where("cock_id = ?", id).Delete(dep.model).Error; err != nil {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).Model(&models.MarketplaceListing{}).
		Where("cock_id = ?", id).
		Pluck("id", &out.Result.Listings).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("cock_id = ?", id).Delete(&models.MarketplaceListing{}).Error; err != nil {
		return nil, err
	}

	if err := r.owned(ctx, ownerID).Model(&models.Cock{}).
		Where("(sire_id = ? OR dam_id = ?)", id, id).
		Pluck("id", &out.Result.Unlinked).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Cock{}).Where("sire_id = ?", id).Update("sire_id", nil).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Cock{}).Where("dam_id = ?", id).Update("dam_id", nil).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Cock{}).Error; err != nil {
		return nil, err
	}
	return out, nil
}
