package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/pedigree"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type CockEngine interface {
	CreateWithAncestors(ctx context.Context, ownerID uint64, in pedigree.CreateInput) (*pedigree.CreateResult, error)
	ExtendAncestry(ctx context.Context, ownerID, targetID uint64, sire, dam *pedigree.CockFields) (*pedigree.ExtendResult, error)
	UpdateCock(ctx context.Context, ownerID, cockID uint64, patch pedigree.CockPatch) (*models.Cock, error)
	GetCock(ctx context.Context, ownerID, cockID uint64) (*models.Cock, error)
	ListCocks(ctx context.Context, ownerID uint64, filter pedigree.ListFilter) ([]models.Cock, error)
	DeleteCock(ctx context.Context, ownerID, cockID uint64) (*pedigree.DeleteResult, error)
}

// CockUploadLimit bounds a multipart cock create or media request.
const CockUploadLimit = 64 << 20

type cockFieldsRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Code        string  `json:"code" validate:"required,max=40"`
	WeightGrams *int    `json:"weight_grams" validate:"omitempty,gt=0"`
	HeightCM    *int    `json:"height_cm" validate:"omitempty,gt=0"`
	Colour      *string `json:"colour" validate:"omitempty,max=60"`
	Breed       *string `json:"breed" validate:"omitempty,max=60"`
	BirthDate   *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
	Status      string  `json:"status" validate:"omitempty,max=20"`
}

func (c *cockFieldsRequest) toFields() pedigree.CockFields {
	if c == nil {
		return pedigree.CockFields{}
	}
	return pedigree.CockFields{
		Name:        c.Name,
		Code:        c.Code,
		WeightGrams: c.WeightGrams,
		HeightCM:    c.HeightCM,
		Colour:      c.Colour,
		Breed:       c.Breed,
		BirthDate:   parseDate(c.BirthDate),
		Notes:       c.Notes,
		Status:      enums.CockStatus(c.Status),
	}
}

type ancestorRequest struct {
	ID   *uint64            `json:"id" validate:"omitempty,gt=0"`
	Cock *cockFieldsRequest `json:"cock"`
}

func (a *ancestorRequest) toSpec() *pedigree.AncestorSpec {
	if a == nil {
		return nil
	}
	spec := &pedigree.AncestorSpec{Ref: a.ID}
	if a.Cock != nil {
		fields := a.Cock.toFields()
		spec.Fields = &fields
	}
	return spec
}

type createCockRequest struct {
	cockFieldsRequest
	Sire *ancestorRequest `json:"sire"`
	Dam  *ancestorRequest `json:"dam"`
}

type createCockResponse struct {
	Cock         *cockResponse `json:"cock"`
	Sire         *cockResponse `json:"sire,omitempty"`
	Dam          *cockResponse `json:"dam,omitempty"`
	CohortKey    uint64        `json:"cohort_key"`
	CreatedCount int           `json:"created_count"`
}

// CockCreate accepts either a JSON body or a multipart form whose "payload"
// field holds the JSON document, with optional "principal_image" and
// "images" files.
func CockCreate(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createCockRequest
		var in pedigree.CreateInput
		if validators.IsMultipart(r) {
			if err := validators.ParseMultipart(w, r, CockUploadLimit); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if err := validators.DecodeFormJSON(r, "payload", &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			principal, err := validators.FormFile(r, "principal_image")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if principal != nil {
				in.PrincipalImage = &pedigree.Upload{Payload: principal.Payload, Name: principal.Name}
			}
			aux, err := validators.FormFiles(r, "images")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, f := range aux {
				in.Auxiliary = append(in.Auxiliary, pedigree.Upload{Payload: f.Payload, Name: f.Name})
			}
		} else if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		in.Primary = body.toFields()
		in.Sire = body.Sire.toSpec()
		in.Dam = body.Dam.toSpec()

		result, err := engine.CreateWithAncestors(r.Context(), middleware.PrincipalIDFromContext(r.Context()), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createCockResponse{
			Cock:         newCockResponse(result.Primary),
			Sire:         newCockResponse(result.Sire),
			Dam:          newCockResponse(result.Dam),
			CohortKey:    result.CohortKey,
			CreatedCount: result.CreatedCount,
		})
	}
}

func CockList(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := pedigree.ListFilter{
			Search: validators.SanitizeString(r.URL.Query().Get("q"), 80),
			Limit:  limit,
			Offset: offset,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.CockStatus(strings.ToLower(raw))
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Status = &status
		}

		rows, err := engine.ListCocks(r.Context(), middleware.PrincipalIDFromContext(r.Context()), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponses(rows))
	}
}

func CockGet(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cock, err := engine.GetCock(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponse(cock))
	}
}

// parentPatch tracks whether a parent key was present so that an explicit
// null clears the edge while an absent key leaves it alone.
type parentPatch struct {
	Set bool
	ID  *uint64
}

func (p *parentPatch) UnmarshalJSON(data []byte) error {
	p.Set = true
	if strings.TrimSpace(string(data)) == "null" {
		p.ID = nil
		return nil
	}
	var id uint64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	p.ID = &id
	return nil
}

type updateCockRequest struct {
	Name        *string     `json:"name" validate:"omitempty,min=1,max=120"`
	Code        *string     `json:"code" validate:"omitempty,min=1,max=40"`
	WeightGrams *int        `json:"weight_grams" validate:"omitempty,gt=0"`
	HeightCM    *int        `json:"height_cm" validate:"omitempty,gt=0"`
	Colour      *string     `json:"colour" validate:"omitempty,max=60"`
	Breed       *string     `json:"breed" validate:"omitempty,max=60"`
	BirthDate   *string     `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       *string     `json:"notes" validate:"omitempty,max=2000"`
	Status      *string     `json:"status" validate:"omitempty,max=20"`
	SireID      parentPatch `json:"sire_id"`
	DamID       parentPatch `json:"dam_id"`
}

func CockUpdate(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateCockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		patch := pedigree.CockPatch{
			Name:        body.Name,
			Code:        body.Code,
			WeightGrams: body.WeightGrams,
			HeightCM:    body.HeightCM,
			Colour:      body.Colour,
			Breed:       body.Breed,
			BirthDate:   parseDate(body.BirthDate),
			Notes:       body.Notes,
			Sire:        pedigree.ParentRef{Set: body.SireID.Set, ID: body.SireID.ID},
			Dam:         pedigree.ParentRef{Set: body.DamID.Set, ID: body.DamID.ID},
		}
		if body.Status != nil {
			status := enums.CockStatus(*body.Status)
			patch.Status = &status
		}

		cock, err := engine.UpdateCock(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponse(cock))
	}
}

func CockDelete(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.DeleteCock(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type extendAncestryRequest struct {
	Sire *cockFieldsRequest `json:"sire"`
	Dam  *cockFieldsRequest `json:"dam"`
}

type extendAncestryResponse struct {
	Cock    *cockResponse   `json:"cock"`
	Created []*cockResponse `json:"created"`
}

// CockExtendAncestry synthesises parents for a cock recorded without them.
func CockExtendAncestry(engine CockEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body extendAncestryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var sire, dam *pedigree.CockFields
		if body.Sire != nil {
			f := body.Sire.toFields()
			sire = &f
		}
		if body.Dam != nil {
			f := body.Dam.toFields()
			dam = &f
		}

		result, err := engine.ExtendAncestry(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, sire, dam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, extendAncestryResponse{
			Cock:    newCockResponse(result.Target),
			Created: newCockResponses(result.Created),
		})
	}
}

// parseDate expects input already checked by the datetime validator.
func parseDate(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &t
}
