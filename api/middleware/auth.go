package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/gallotrack-backend/api/responses"
	pkgAuth "github.com/angelmondragon/gallotrack-backend/pkg/auth"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.PrincipalID == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
				return
			}

			ctx := WithPrincipal(r.Context(), claims.PrincipalID, claims.Admin)
			ctx = context.WithValue(ctx, ctxVerified, claims.Verified)
			if tr := traceFrom(ctx); tr != nil {
				tr.principalID, tr.admin = claims.PrincipalID, claims.Admin
			}
			if logg != nil {
				ctx = logg.WithPrincipalID(ctx, claims.PrincipalID)
				if claims.Admin {
					ctx = logg.WithField(ctx, "admin", true)
				} else {
					ctx = logg.WithOwnerID(ctx, claims.PrincipalID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
