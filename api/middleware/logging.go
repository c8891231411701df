package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

// requestTrace collects identity resolved deeper in the chain so the access
// log written on the way out can name the tenant that made the call.
type requestTrace struct {
	principalID uint64
	admin       bool
}

type traceKey struct{}

func traceFrom(ctx context.Context) *requestTrace {
	tr, _ := ctx.Value(traceKey{}).(*requestTrace)
	return tr
}

// Logging writes one access line per request. Breeder calls carry owner_id;
// admin calls carry admin_id instead.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tr := &requestTrace{}
			ctx := context.WithValue(r.Context(), traceKey{}, tr)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				fields["route"] = rc.RoutePattern()
			}
			switch {
			case tr.principalID != 0 && tr.admin:
				fields["admin_id"] = tr.principalID
			case tr.principalID != 0:
				fields["owner_id"] = tr.principalID
			}
			logCtx := logg.WithFields(ctx, fields)
			if status >= http.StatusInternalServerError {
				logg.Warn(logCtx, "request served with server error")
				return
			}
			logg.Info(logCtx, "request served")
		})
	}
}
