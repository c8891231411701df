package models

import (
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// DeviceToken is a push registration. Token strings are unique across the
// store; a token re-registered by another principal moves to that principal.
type DeviceToken struct {
	ID          uint64               `gorm:"primaryKey;autoIncrement"`
	PrincipalID uint64               `gorm:"column:principal_id;not null;index"`
	Token       string               `gorm:"column:token;not null;uniqueIndex"`
	Platform    enums.DevicePlatform `gorm:"column:platform;not null"`
	Active      bool                 `gorm:"column:active;not null;default:true"`
	LastSeenAt  time.Time            `gorm:"column:last_seen_at;not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
