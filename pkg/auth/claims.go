package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	PrincipalID uint64
	Email       string
	Admin       bool
	Verified    bool
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	PrincipalID uint64 `json:"pid"`
	Email       string `json:"email"`
	Admin       bool   `json:"admin,omitempty"`
	Verified    bool   `json:"verified"`
	jwt.RegisteredClaims
}
