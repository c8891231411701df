package notifications

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Repository persists push registrations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, principalID uint64, token string, platform enums.DevicePlatform, now time.Time) (*models.DeviceToken, error)
	Deactivate(ctx context.Context, principalID uint64, token string) (bool, error)
	DeactivateTokens(ctx context.Context, tokens []string) (int64, error)
	ActiveTokens(ctx context.Context, target Target) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a device token repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert registers token for principalID. A token already known is moved to
// principalID and re-activated.
func (r *repository) Upsert(ctx context.Context, principalID uint64, token string, platform enums.DevicePlatform, now time.Time) (*models.DeviceToken, error) {
	row := &models.DeviceToken{
		PrincipalID: principalID,
		Token:       token,
		Platform:    platform,
		Active:      true,
		LastSeenAt:  now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"principal_id": principalID,
			"platform":     platform,
			"active":       true,
			"last_seen_at": now,
			"updated_at":   now,
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	var stored models.DeviceToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repository) Deactivate(ctx context.Context, principalID uint64, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("principal_id = ? AND token = ? AND active = ?", principalID, token, true).
		Update("active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeactivateTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("token IN ? AND active = ?", tokens, true).
		Update("active", false)
	return res.RowsAffected, res.Error
}

// ActiveTokens resolves target to the distinct active tokens of principals
// that accept notifications.
func (r *repository) ActiveTokens(ctx context.Context, target Target) ([]string, error) {
	q := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Joins("JOIN principals ON principals.id = device_tokens.principal_id").
		Where("device_tokens.active = ? AND principals.notifications_opt_in = ?", true, true)
	if !target.All {
		switch {
		case target.Admins && len(target.PrincipalIDs) > 0:
			q = q.Where("(principals.is_admin = ? OR device_tokens.principal_id IN ?)", true, target.PrincipalIDs)
		case target.Admins:
			q = q.Where("principals.is_admin = ?", true)
		default:
			q = q.Where("device_tokens.principal_id IN ?", target.PrincipalIDs)
		}
	}
	var tokens []string
	if err := q.Distinct("device_tokens.token").Order("device_tokens.token").Pluck("device_tokens.token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}
