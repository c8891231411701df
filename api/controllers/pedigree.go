package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/pedigree"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type PedigreeReader interface {
	BuildTree(ctx context.Context, ownerID, cockID uint64, maxDepth int) (*pedigree.Tree, error)
	SearchByCohort(ctx context.Context, ownerID, cohortKey uint64) ([]models.Cock, error)
	SearchDescendants(ctx context.Context, ownerID, ancestorID uint64) ([]models.Cock, error)
	SearchAncestors(ctx context.Context, ownerID, cockID uint64, maxDepth int) ([]uint64, error)
}

// CockTree renders the nested ancestor view. depth defaults to the engine
// default; 0 returns the root alone.
func CockTree(engine PedigreeReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		depth, err := validators.ParseQueryInt(r, "depth", -1, 0, pedigree.MaxTreeDepth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tree, err := engine.BuildTree(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, depth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tree)
	}
}

func CockDescendants(engine PedigreeReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := engine.SearchDescendants(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponses(rows))
	}
}

func CockAncestors(engine PedigreeReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "cockID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		depth, err := validators.ParseQueryInt(r, "depth", -1, 0, pedigree.MaxTreeDepth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids, err := engine.SearchAncestors(r.Context(), middleware.PrincipalIDFromContext(r.Context()), id, depth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"cock_id": id, "ancestor_ids": ids})
	}
}

func CohortMembers(engine PedigreeReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := validators.ParseIDParam(r, "cohortKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := engine.SearchByCohort(r.Context(), middleware.PrincipalIDFromContext(r.Context()), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCockResponses(rows))
	}
}
