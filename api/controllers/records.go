package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/records"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/pagination"
)

type RecordService interface {
	CreateTraining(ctx context.Context, ownerID, cockID uint64, in records.TrainingInput) (*models.Training, error)
	CreateFight(ctx context.Context, ownerID, cockID uint64, in records.FightInput) (*models.Fight, error)
	CreateVaccine(ctx context.Context, ownerID, cockID uint64, in records.VaccineInput) (*models.Vaccine, error)
	ListTrainings(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*records.TrainingList, error)
	ListFights(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*records.FightList, error)
	ListVaccines(ctx context.Context, ownerID, cockID uint64, params pagination.Params) (*records.VaccineList, error)
	UpcomingVaccines(ctx context.Context, ownerID uint64, within time.Duration) ([]models.Vaccine, error)
	FightStats(ctx context.Context, ownerID, cockID uint64) (*records.FightStats, error)
	Delete(ctx context.Context, ownerID uint64, kind enums.ResourceKind, id uint64) error
}

// RecordUploadLimit bounds a record create carrying a photo or clip.
const RecordUploadLimit = 64 << 20

type trainingRequest struct {
	OccurredAt      *time.Time `json:"occurred_at"`
	Kind            string     `json:"kind" validate:"required,max=60"`
	DurationMinutes int        `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Notes           *string    `json:"notes" validate:"omitempty,max=2000"`
}

type fightRequest struct {
	OccurredAt *time.Time `json:"occurred_at"`
	Venue      string     `json:"venue" validate:"max=120"`
	Opponent   string     `json:"opponent" validate:"max=120"`
	Result     string     `json:"result" validate:"required,oneof=win loss draw"`
	Notes      *string    `json:"notes" validate:"omitempty,max=2000"`
}

type vaccineRequest struct {
	OccurredAt *time.Time `json:"occurred_at"`
	Vaccine    string     `json:"vaccine" validate:"required,max=120"`
	Dose       string     `json:"dose" validate:"max=60"`
	NextDueAt  *time.Time `json:"next_due_at"`
	Notes      *string    `json:"notes" validate:"omitempty,max=2000"`
}

// decodeRecord reads a JSON body, or a multipart form with the document in
// "payload" and an optional "media" file.
func decodeRecord(w http.ResponseWriter, r *http.Request, dest any) (*records.Media, error) {
	if !validators.IsMultipart(r) {
		return nil, validators.DecodeJSONBody(r, dest)
	}
	if err := validators.ParseMultipart(w, r, RecordUploadLimit); err != nil {
		return nil, err
	}
	if err := validators.DecodeFormJSON(r, "payload", dest); err != nil {
		return nil, err
	}
	file, err := validators.FormFile(r, "media")
	if err != nil || file == nil {
		return nil, err
	}
	return &records.Media{Payload: file.Payload, Name: file.Name}, nil
}

func occurred(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func TrainingCreate(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cockID, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body trainingRequest
		media, err := decodeRecord(w, r, &body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.CreateTraining(r.Context(), middleware.PrincipalIDFromContext(r.Context()), cockID, records.TrainingInput{
			OccurredAt:      occurred(body.OccurredAt),
			Kind:            body.Kind,
			DurationMinutes: body.DurationMinutes,
			Notes:           body.Notes,
			Media:           media,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTrainingResponse(row))
	}
}

func FightCreate(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cockID, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body fightRequest
		media, err := decodeRecord(w, r, &body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.CreateFight(r.Context(), middleware.PrincipalIDFromContext(r.Context()), cockID, records.FightInput{
			OccurredAt: occurred(body.OccurredAt),
			Venue:      body.Venue,
			Opponent:   body.Opponent,
			Result:     body.Result,
			Notes:      body.Notes,
			Media:      media,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newFightResponse(row))
	}
}

func VaccineCreate(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cockID, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body vaccineRequest
		media, err := decodeRecord(w, r, &body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.CreateVaccine(r.Context(), middleware.PrincipalIDFromContext(r.Context()), cockID, records.VaccineInput{
			OccurredAt: occurred(body.OccurredAt),
			Vaccine:    body.Vaccine,
			Dose:       body.Dose,
			NextDueAt:  body.NextDueAt,
			Notes:      body.Notes,
			Media:      media,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newVaccineResponse(row))
	}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}

// recordList adapts one of the typed list calls to a handler.
func recordList[M, T any](logg *logger.Logger, list func(ctx context.Context, ownerID, cockID uint64, p pagination.Params) (*records.List[M], error), render func(*M) T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cockID, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := list(r.Context(), middleware.PrincipalIDFromContext(r.Context()), cockID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page.Items, page.NextCursor, render))
	}
}

func TrainingList(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return recordList(logg, svc.ListTrainings, newTrainingResponse)
}

func FightList(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return recordList(logg, svc.ListFights, newFightResponse)
}

func VaccineList(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return recordList(logg, svc.ListVaccines, newVaccineResponse)
}

func FightStats(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cockID, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.FightStats(r.Context(), middleware.PrincipalIDFromContext(r.Context()), cockID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// VaccinesUpcoming lists doses due within ?within= (days or a duration).
func VaccinesUpcoming(svc RecordService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		within, err := validators.ParseQueryDuration(r, "within", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.UpcomingVaccines(r.Context(), middleware.PrincipalIDFromContext(r.Context()), within)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]vaccineResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newVaccineResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RecordDelete removes one record of kind by its {recordID} parameter.
func RecordDelete(svc RecordService, kind enums.ResourceKind, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "recordID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.PrincipalIDFromContext(r.Context()), kind, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
