package users

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
)

// Repository exposes principal persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a principals repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new principal and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreatePrincipalDTO) (*models.Principal, error) {
	principal := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(principal).Error; err != nil {
		return nil, err
	}
	return principal, nil
}

// FindByEmail retrieves the principal matching the provided email. A miss is
// reported as gorm.ErrRecordNotFound.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&principal).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

func (r *Repository) FindByID(ctx context.Context, id uint64) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).First(&principal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

// UpdateLastLogin refreshes the principal's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *Repository) MarkVerified(ctx context.Context, email string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("email = ?", email).
		Update("verified", true)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) SetNotificationsOptIn(ctx context.Context, id uint64, optIn bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		Update("notifications_opt_in", optIn).Error
}

// Delete removes the principal and everything it owns. Dependent rows go
// first so the delete works without ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id uint64) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := []any{
			&models.Training{},
			&models.Fight{},
			&models.Vaccine{},
			&models.MarketplaceListing{},
		}
		for _, model := range owned {
			if err := tx.Where("owner_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Cock{}).Where("owner_id = ?", id).
			Updates(map[string]any{"sire_id": nil, "dam_id": nil}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.Cock{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.Subscription{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.PendingPayment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("principal_id = ?", id).Delete(&models.DeviceToken{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Principal{}, "id = ?", id)
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}

// ListMediaIDs returns provider ids of every object the principal's cocks
// and records reference, for cleanup after account deletion.
func (r *Repository) ListMediaIDs(ctx context.Context, id uint64) ([]string, error) {
	var cocks []models.Cock
	err := r.db.WithContext(ctx).
		Select("principal_image_storage_id", "auxiliary").
		Where("owner_id = ?", id).
		Find(&cocks).Error
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			ids = append(ids, v)
		}
	}
	for _, c := range cocks {
		add(c.PrincipalImageStorageID)
		for _, img := range c.Auxiliary {
			add(img.StorageID)
		}
	}
	for _, model := range []any{&models.Training{}, &models.Fight{}, &models.Vaccine{}} {
		var recordIDs []string
		err := r.db.WithContext(ctx).
			Model(model).
			Where("owner_id = ? AND media_storage_id <> ''", id).
			Pluck("media_storage_id", &recordIDs).Error
		if err != nil {
			return nil, err
		}
		for _, v := range recordIDs {
			add(v)
		}
	}
	return ids, nil
}
