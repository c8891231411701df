package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/users"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/security"
)

const (
	verificationCodeLength = 6
	defaultVerificationTTL = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gratisGranter interface {
	EnsureGratis(ctx context.Context, tx *gorm.DB, ownerID uint64) (*models.Subscription, error)
}

type verificationStore interface {
	StoreVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error
	ConsumeVerificationCode(ctx context.Context, email, code string) (bool, error)
}

// RegisterService handles account creation and email confirmation.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.PrincipalDTO, error)
	Verify(ctx context.Context, req VerifyRequest) error
	ResendCode(ctx context.Context, email string) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB              txRunner
	Billing         gratisGranter
	Codes           verificationStore
	PasswordConfig  config.PasswordConfig
	VerificationTTL time.Duration
	Logger          *logger.Logger
}

type registerService struct {
	db          txRunner
	billing     gratisGranter
	codes       verificationStore
	passwordCfg config.PasswordConfig
	codeTTL     time.Duration
	logg        *logger.Logger
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing service required")
	}
	ttl := params.VerificationTTL
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}
	return &registerService{
		db:          params.DB,
		billing:     params.Billing,
		codes:       params.Codes,
		passwordCfg: params.PasswordConfig,
		codeTTL:     ttl,
		logg:        params.Logger,
	}, nil
}

// Register creates the principal and its gratis subscription in one
// transaction, then issues a verification code.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.PrincipalDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display_name is required")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.Principal
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check principal email")
		}

		principal, err := repo.Create(ctx, users.CreatePrincipalDTO{
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  displayName,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create principal")
		}
		if _, err := s.billing.EnsureGratis(ctx, tx, principal.ID); err != nil {
			return err
		}
		created = principal
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.issueCode(ctx, email); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "principal_id", created.ID), "verification code not issued")
	}
	return users.FromModel(created), nil
}

func (s *registerService) Verify(ctx context.Context, req VerifyRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.codes == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "verification store not configured")
	}
	ok, err := s.codes.ConsumeVerificationCode(ctx, email, strings.TrimSpace(req.Code))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check verification code")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired code")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := users.NewRepository(tx).MarkVerified(ctx, email)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark verified")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
		}
		return nil
	})
}

// ResendCode replaces any pending code. Unknown or verified emails are
// accepted silently so the endpoint does not reveal accounts.
func (s *registerService) ResendCode(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var principal *models.Principal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := users.NewRepository(tx).FindByEmail(ctx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		principal = found
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup principal")
	}
	if principal == nil || principal.Verified {
		return nil
	}
	if err := s.issueCode(ctx, email); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue verification code")
	}
	return nil
}

// issueCode stores a fresh code. Delivery is handled outside this service;
// the code is logged at debug level for local runs.
func (s *registerService) issueCode(ctx context.Context, email string) error {
	if s.codes == nil {
		return errors.New("verification store not configured")
	}
	code, err := security.GenerateVerificationCode(verificationCodeLength)
	if err != nil {
		return err
	}
	if err := s.codes.StoreVerificationCode(ctx, email, code, s.codeTTL); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"email": email, "code": code}), "verification code issued")
	}
	return nil
}
