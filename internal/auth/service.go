package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/users"
	pkgAuth "github.com/angelmondragon/gallotrack-backend/pkg/auth"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type service struct {
	principals principalRepository
	jwtCfg     config.JWTConfig
	now        func() time.Time
}

type principalRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	PrincipalRepo principalRepository
	JWTConfig     config.JWTConfig
	Now           func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.PrincipalRepo == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		principals: params.PrincipalRepo,
		jwtCfg:     params.JWTConfig,
		now:        now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	principal, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, principal)
}

func (s *service) AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	principal, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return s.issue(ctx, principal)
}

func (s *service) issue(ctx context.Context, principal *models.Principal) (*LoginResponse, error) {
	now := s.now().UTC()
	if err := s.principals.UpdateLastLogin(ctx, principal.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	principal.LastLoginAt = &now

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Admin:       principal.IsAdmin,
		Verified:    principal.Verified,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   s.jwtCfg.ExpirationMinutes * 60,
		Principal:   users.FromModel(principal),
	}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	principal, err := s.principals.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup principal")
	}

	valid, err := security.VerifyPassword(password, principal.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return principal, nil
}
