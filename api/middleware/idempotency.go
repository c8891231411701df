package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gallotrack-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/gallotrack-backend/pkg/redis"
)

const idempotencyHeader = "Idempotency-Key"

// replay is what Redis holds under an Idempotency-Key. Pending marks a
// request still being handled, so a concurrent retry cannot run it twice.
type replay struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent makes a create endpoint safe to retry, for example a cock
// registration or a payment submission sent again after a dropped
// connection. Callers must send an Idempotency-Key; the first reply under
// that key is replayed for window. A different body under the same key is
// refused, and 5xx replies are forgotten so the client can retry.
func Idempotent(store pkgredis.IdempotencyStore, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || len(clientKey) > 128 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (at most 128 characters)"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			// the key is scoped to the owner and route so breeders cannot collide
			scope := strconv.FormatUint(PrincipalIDFromContext(ctx), 10) + "|" + r.Method + "|" + strings.TrimSuffix(r.URL.Path, "/")
			key := store.IdempotencyKey(scope, clientKey)
			fp := fingerprint(r, body)

			pending, _ := json.Marshal(replay{Pending: true, Fingerprint: fp})
			claimed, err := store.SetNX(ctx, key, pending, window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				answerRepeat(w, r, store, key, fp, logg)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			done, _ := json.Marshal(replay{
				Fingerprint: fp,
				Status:      cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.buf.Bytes(),
			})
			if err := store.Set(ctx, key, done, window); err != nil && logg != nil {
				logg.Error(ctx, "store idempotent reply", err)
			}
		})
	}
}

func answerRepeat(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, fp string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key expired mid request, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}
	var prev replay
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent reply"))
		return
	}
	switch {
	case prev.Fingerprint != fp:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key already used for a different request"))
	case prev.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if prev.ContentType != "" {
			w.Header().Set("Content-Type", prev.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(prev.Status)
		_, _ = w.Write(prev.Body)
	}
}

// fingerprint covers the body and the multipart boundary-free content type,
// so re-sending the same cock photo under the same key still matches.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	h.Write([]byte(ct))
	h.Write([]byte{0})
	if ct == "multipart/form-data" {
		body = stripBoundaries(body, r.Header.Get("Content-Type"))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func stripBoundaries(body []byte, contentType string) []byte {
	_, params, ok := strings.Cut(contentType, "boundary=")
	if !ok {
		return body
	}
	boundary := strings.Trim(strings.TrimSpace(params), `"`)
	if boundary == "" {
		return body
	}
	return bytes.ReplaceAll(body, []byte(boundary), nil)
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}
