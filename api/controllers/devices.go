package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type DeviceRegistry interface {
	RegisterDeviceToken(ctx context.Context, principalID uint64, token string, platform enums.DevicePlatform) (*models.DeviceToken, error)
	UnregisterDeviceToken(ctx context.Context, principalID uint64, token string) error
}

type deviceTokenRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
}

type deviceTokenResponse struct {
	ID         uint64               `json:"id"`
	Platform   enums.DevicePlatform `json:"platform"`
	Active     bool                 `json:"active"`
	LastSeenAt time.Time            `json:"last_seen_at"`
}

func DeviceRegister(svc DeviceRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body deviceTokenRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.RegisterDeviceToken(r.Context(), middleware.PrincipalIDFromContext(r.Context()), body.Token, enums.DevicePlatform(body.Platform))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, deviceTokenResponse{
			ID:         row.ID,
			Platform:   row.Platform,
			Active:     row.Active,
			LastSeenAt: row.LastSeenAt,
		})
	}
}

type deviceUnregisterRequest struct {
	Token string `json:"token" validate:"required"`
}

func DeviceUnregister(svc DeviceRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body deviceUnregisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UnregisterDeviceToken(r.Context(), middleware.PrincipalIDFromContext(r.Context()), strings.TrimSpace(body.Token)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
