package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/gallotrack-backend/api/responses"
	"github.com/angelmondragon/gallotrack-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type WebhookIngester interface {
	IngestWebhook(ctx context.Context, in payments.WebhookInput) (*payments.WebhookResult, error)
}

// MercadoPagoWebhook acknowledges processor callbacks. The resource id comes
// from ?data.id= when present, otherwise from the body.
func MercadoPagoWebhook(svc WebhookIngester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.IngestWebhook(ctx, payments.WebhookInput{
			Signature:  r.Header.Get("X-Signature"),
			RequestID:  r.Header.Get("X-Request-Id"),
			ResourceID: r.URL.Query().Get("data.id"),
			Body:       payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"outcome": result.Outcome})
	}
}
