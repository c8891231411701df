// Package records keeps the per-cock logbooks: trainings, fights and
// vaccines. Each insert is admitted by the quota service first.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

type admitter interface {
	Require(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64, n int) error
}

type mediaStore interface {
	Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error)
	Delete(ctx context.Context, storageID string) bool
}

// ServiceParams groups dependencies for the records service. Media is
// optional; without it records carrying media are refused.
type ServiceParams struct {
	Repo        Repository
	Quota       admitter
	Media       mediaStore
	MediaLimits storage.Limits
	RootFolder  string
	Logger      *logger.Logger
	Now         func() time.Time
}

type Service struct {
	repo   Repository
	quota  admitter
	media  mediaStore
	limits storage.Limits
	root   string
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("records repo is required")
	}
	if params.Quota == nil {
		return nil, errors.New("quota service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	root := strings.Trim(params.RootFolder, "/")
	if root == "" {
		root = "gallotrack"
	}
	return &Service{
		repo:   params.Repo,
		quota:  params.Quota,
		media:  params.Media,
		limits: params.MediaLimits,
		root:   root,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *Service) CreateTraining(ctx context.Context, ownerID, cockID uint64, in TrainingInput) (*models.Training, error) {
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		return nil, errValidation("kind", "training kind is required")
	}
	if in.DurationMinutes < 0 {
		return nil, errValidation("duration_minutes", "duration cannot be negative")
	}
	row := &models.Training{
		OwnerID:         ownerID,
		CockID:          cockID,
		OccurredAt:      s.occurredAt(in.OccurredAt),
		Kind:            kind,
		DurationMinutes: in.DurationMinutes,
		Notes:           trimmed(in.Notes),
	}
	err := s.create(ctx, ownerID, cockID, enums.ResourceTrainings, in.Media, row, func(url, id string) {
		row.MediaURL, row.MediaStorageID = url, id
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Service) CreateFight(ctx context.Context, ownerID, cockID uint64, in FightInput) (*models.Fight, error) {
	result := strings.ToLower(strings.TrimSpace(in.Result))
	switch result {
	case ResultWin, ResultLoss, ResultDraw:
	default:
		return nil, errValidation("result", "result must be win, loss or draw")
	}
	row := &models.Fight{
		OwnerID:    ownerID,
		CockID:     cockID,
		OccurredAt: s.occurredAt(in.OccurredAt),
		Venue:      strings.TrimSpace(in.Venue),
		Opponent:   strings.TrimSpace(in.Opponent),
		Result:     result,
		Notes:      trimmed(in.Notes),
	}
	err := s.create(ctx, ownerID, cockID, enums.ResourceFights, in.Media, row, func(url, id string) {
		row.MediaURL, row.MediaStorageID = url, id
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Service) CreateVaccine(ctx context.Context, ownerID, cockID uint64, in VaccineInput) (*models.Vaccine, error) {
	name := strings.TrimSpace(in.Vaccine)
	if name == "" {
		return nil, errValidation("vaccine", "vaccine name is required")
	}
	occurred := s.occurredAt(in.OccurredAt)
	if in.NextDueAt != nil && !in.NextDueAt.After(occurred) {
		return nil, errValidation("next_due_at", "next dose must be after the applied dose")
	}
	row := &models.Vaccine{
		OwnerID:    ownerID,
		CockID:     cockID,
		OccurredAt: occurred,
		Vaccine:    name,
		Dose:       strings.TrimSpace(in.Dose),
		NextDueAt:  in.NextDueAt,
		Notes:      trimmed(in.Notes),
	}
	err := s.create(ctx, ownerID, cockID, enums.ResourceVaccines, in.Media, row, func(url, id string) {
		row.MediaURL, row.MediaStorageID = url, id
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// create admits one record of kind for the cock, stores the optional media
// and inserts row. Media that landed before a failed insert is removed.
func (s *Service) create(ctx context.Context, ownerID, cockID uint64, kind enums.ResourceKind, media *Media, row any, setMedia func(url, storageID string)) error {
	if cockID == 0 {
		return errValidation("cock_id", "cock id is required")
	}
	if err := s.quota.Require(ctx, ownerID, kind, &cockID, 1); err != nil {
		return err
	}

	var storageID string
	if media != nil {
		res, err := s.upload(ctx, ownerID, cockID, kind, media)
		if err != nil {
			return err
		}
		storageID = res.StorageID
		setMedia(res.URL, res.StorageID)
	}

	if err := s.repo.Create(ctx, row); err != nil {
		s.discard(ctx, storageID)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("create %s record", kind))
	}
	return nil
}

func (s *Service) upload(ctx context.Context, ownerID, cockID uint64, kind enums.ResourceKind, media *Media) (*storage.UploadResult, error) {
	if s.media == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "media storage is not configured").
			WithReason(storage.ReasonProviderFailed)
	}
	detected, _, err := storage.Sniff(media.Payload, enums.MediaKindAuto, s.limits)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(media.Name)
	if name == "" {
		name = fmt.Sprintf("%s_%d", kind, s.now().Unix())
	}
	folder := s.root + "/owners/" + strconv.FormatUint(ownerID, 10) + "/cocks/" + strconv.FormatUint(cockID, 10) + "/" + string(kind)
	return s.media.Upload(ctx, media.Payload, name, folder, detected)
}

func (s *Service) discard(ctx context.Context, storageID string) {
	if storageID == "" || s.media == nil {
		return
	}
	if !s.media.Delete(ctx, storageID) && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "storage_id", storageID), "record media left behind")
	}
}

func (s *Service) ListTrainings(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*TrainingList, error) {
	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTrainings(ctx, ownerID, cockID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trainings")
	}
	items, next := pagination.Page(rows, params.Limit, func(t models.Training) (time.Time, uint64) { return t.OccurredAt, t.ID })
	return &TrainingList{Items: items, NextCursor: next}, nil
}

func (s *Service) ListFights(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*FightList, error) {
	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListFights(ctx, ownerID, cockID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list fights")
	}
	items, next := pagination.Page(rows, params.Limit, func(f models.Fight) (time.Time, uint64) { return f.OccurredAt, f.ID })
	return &FightList{Items: items, NextCursor: next}, nil
}

func (s *Service) ListVaccines(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*VaccineList, error) {
	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListVaccines(ctx, ownerID, cockID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vaccines")
	}
	items, next := pagination.Page(rows, params.Limit, func(v models.Vaccine) (time.Time, uint64) { return v.OccurredAt, v.ID })
	return &VaccineList{Items: items, NextCursor: next}, nil
}

// UpcomingVaccines returns doses due within the window starting now.
func (s *Service) UpcomingVaccines(ctx context.Context, ownerID uint64, within time.Duration) ([]models.Vaccine, error) {
	if within <= 0 {
		within = 30 * 24 * time.Hour
	}
	from := s.now().UTC()
	rows, err := s.repo.VaccinesDueBetween(ctx, ownerID, from, from.Add(within))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list upcoming vaccines")
	}
	return rows, nil
}

func (s *Service) FightStats(ctx context.Context, ownerID, cockID uint64) (*FightStats, error) {
	counts, err := s.repo.FightResults(ctx, ownerID, cockID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count fight results")
	}
	stats := &FightStats{
		CockID: cockID,
		Wins:   counts[ResultWin],
		Losses: counts[ResultLoss],
		Draws:  counts[ResultDraw],
	}
	stats.Total = stats.Wins + stats.Losses + stats.Draws
	return stats, nil
}

// Delete removes one record and its media. A provider failure does not undo
// the delete.
func (s *Service) Delete(ctx context.Context, ownerID uint64, kind enums.ResourceKind, id uint64) error {
	if !kind.PerCock() {
		return errValidation("kind", "unknown record kind")
	}
	storageID, found, err := s.repo.MediaStorageID(ctx, kind, ownerID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load record")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
	}
	deleted, err := s.repo.Delete(ctx, kind, ownerID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete record")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
	}
	s.discard(ctx, storageID)
	return nil
}

func (s *Service) occurredAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

func parseCursor(raw string) (*pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return cursor, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func errValidation(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"field": field})
}
