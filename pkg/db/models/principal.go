package models

import "time"

// Principal is an authenticated account that owns records.
type Principal struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement"`
	Email              string     `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash       string     `gorm:"column:password_hash;not null"`
	DisplayName        string     `gorm:"column:display_name;not null"`
	Verified           bool       `gorm:"column:verified;not null;default:false"`
	IsAdmin            bool       `gorm:"column:is_admin;not null;default:false"`
	NotificationsOptIn bool       `gorm:"column:notifications_opt_in;not null;default:true"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
