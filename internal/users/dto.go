package users

import (
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
)

// PrincipalDTO is the transport shape that omits sensitive credentials.
type PrincipalDTO struct {
	ID                 uint64     `json:"id"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"display_name"`
	Verified           bool       `json:"verified"`
	IsAdmin            bool       `json:"is_admin"`
	NotificationsOptIn bool       `json:"notifications_opt_in"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CreatePrincipalDTO holds the data required by the repo to persist a new principal.
type CreatePrincipalDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
	IsAdmin      bool
	Verified     bool
}

// ToModel converts the DTO into the GORM model.
func (dto CreatePrincipalDTO) ToModel() *models.Principal {
	return &models.Principal{
		Email:              dto.Email,
		PasswordHash:       dto.PasswordHash,
		DisplayName:        dto.DisplayName,
		IsAdmin:            dto.IsAdmin,
		Verified:           dto.Verified,
		NotificationsOptIn: true,
	}
}

// FromModel maps a principal model into the public DTO.
func FromModel(p *models.Principal) *PrincipalDTO {
	if p == nil {
		return nil
	}
	return &PrincipalDTO{
		ID:                 p.ID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		Verified:           p.Verified,
		IsAdmin:            p.IsAdmin,
		NotificationsOptIn: p.NotificationsOptIn,
		LastLoginAt:        p.LastLoginAt,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
