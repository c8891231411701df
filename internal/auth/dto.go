package auth

import (
	"github.com/angelmondragon/gallotrack-backend/internal/users"
)

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the access token and principal produced by a successful login.
type LoginResponse struct {
	AccessToken string              `json:"access_token"`
	ExpiresIn   int                 `json:"expires_in"`
	Principal   *users.PrincipalDTO `json:"principal"`
}

// RegisterRequest contains the payload required to open an account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,max=80"`
}

// VerifyRequest confirms an email with the code sent after registration.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric,len=6"`
}
