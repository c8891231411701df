package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/users"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type mediaDeleter interface {
	Delete(ctx context.Context, storageID string) bool
}

// AccountService serves the signed-in principal's own account.
type AccountService struct {
	repo  *users.Repository
	media mediaDeleter
	logg  *logger.Logger
}

func NewAccountService(repo *users.Repository, media mediaDeleter, logg *logger.Logger) (*AccountService, error) {
	if repo == nil {
		return nil, errors.New("principal repository is required")
	}
	return &AccountService{repo: repo, media: media, logg: logg}, nil
}

func (s *AccountService) Me(ctx context.Context, principalID uint64) (*users.PrincipalDTO, error) {
	principal, err := s.repo.FindByID(ctx, principalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load principal")
	}
	return users.FromModel(principal), nil
}

func (s *AccountService) SetNotificationsOptIn(ctx context.Context, principalID uint64, optIn bool) error {
	if err := s.repo.SetNotificationsOptIn(ctx, principalID, optIn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update notification preference")
	}
	return nil
}

// Delete removes the account with everything it owns. Provider media is
// deleted best-effort after the rows are gone.
func (s *AccountService) Delete(ctx context.Context, principalID uint64) error {
	mediaIDs, err := s.repo.ListMediaIDs(ctx, principalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list account media")
	}
	deleted, err := s.repo.Delete(ctx, principalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete account")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
	}
	failed := 0
	if s.media != nil {
		for _, id := range mediaIDs {
			if !s.media.Delete(ctx, id) {
				failed++
			}
		}
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"principal_id": principalID, "media": len(mediaIDs), "media_errors": failed})
		s.logg.Info(logCtx, "account deleted")
	}
	return nil
}
