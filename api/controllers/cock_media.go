package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/pedigree"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type CockMediaEngine interface {
	AttachPrincipalUpload(ctx context.Context, ownerID, cockID uint64, up pedigree.Upload) (*models.Cock, error)
	AppendAuxiliaryUploads(ctx context.Context, ownerID, cockID uint64, uploads []pedigree.Upload) (*models.Cock, error)
	DetachOne(ctx context.Context, ownerID, cockID uint64, storageID string) (*models.Cock, error)
}

// CockAttachPrincipal replaces the principal image with the "file" part.
func CockAttachPrincipal(engine CockMediaEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ParseMultipart(w, r, CockUploadLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		file, err := validators.FormFile(r, "file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if file == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file is required").WithDetails(map[string]any{"field": "file"}))
			return
		}

		cock, err := engine.AttachPrincipalUpload(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, pedigree.Upload{Payload: file.Payload, Name: file.Name})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponse(cock))
	}
}

// CockAppendAuxiliary appends every "files" part to the gallery in order.
func CockAppendAuxiliary(engine CockMediaEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ParseMultipart(w, r, CockUploadLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		files, err := validators.FormFiles(r, "files")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		uploads := make([]pedigree.Upload, 0, len(files))
		for _, f := range files {
			uploads = append(uploads, pedigree.Upload{Payload: f.Payload, Name: f.Name})
		}

		cock, err := engine.AppendAuxiliaryUploads(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, uploads)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponse(cock))
	}
}

// CockDetachMedia takes the media id as a query parameter since provider
// handles may contain slashes.
func CockDetachMedia(engine CockMediaEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mediaID := strings.TrimSpace(r.URL.Query().Get("media_id"))
		cock, err := engine.DetachOne(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, mediaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponse(cock))
	}
}
