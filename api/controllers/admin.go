package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/api/validators"
	"github.com/angelmondragon/gallotrack-backend/internal/notifications"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type Broadcaster interface {
	Request(ctx context.Context, adminID uint64, in notifications.BroadcastInput) error
}

type StorageSwitcher interface {
	ActiveName() string
	Providers() []string
	SwitchProvider(ctx context.Context, name string) error
}

type broadcastRequest struct {
	Audience     string            `json:"audience" validate:"required"`
	PrincipalIDs []uint64          `json:"principal_ids"`
	Title        string            `json:"title" validate:"required,max=120"`
	Body         string            `json:"body" validate:"max=1000"`
	Data         map[string]string `json:"data"`
}

// AdminBroadcast queues a push for delivery by the notification worker.
func AdminBroadcast(svc Broadcaster, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body broadcastRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err := svc.Request(r.Context(), middleware.PrincipalIDFromContext(r.Context()), notifications.BroadcastInput{
			Audience:     body.Audience,
			PrincipalIDs: body.PrincipalIDs,
			Title:        body.Title,
			Body:         body.Body,
			Data:         body.Data,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

type storageStatusResponse struct {
	Active    string   `json:"active"`
	Providers []string `json:"providers"`
}

func AdminStorageStatus(svc StorageSwitcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, storageStatusResponse{Active: svc.ActiveName(), Providers: svc.Providers()})
	}
}

type switchStorageRequest struct {
	Provider string `json:"provider" validate:"required"`
}

// AdminStorageSwitch changes the provider used for new uploads. Existing
// objects stay where they are.
func AdminStorageSwitch(svc StorageSwitcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body switchStorageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SwitchProvider(r.Context(), body.Provider); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, storageStatusResponse{Active: svc.ActiveName(), Providers: svc.Providers()})
	}
}
