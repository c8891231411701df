package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

const throttlePrefix = "gt:throttle"

type counterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Throttle caps unauthenticated attempts against one auth surface, such as
// breeder login or the email verification code check. Counters are kept per
// client address and per account email, each in its own Redis key:
//
//	gt:throttle:<surface>:addr:<ip>
//	gt:throttle:<surface>:acct:<sha256(email)>
type Throttle struct {
	Surface    string
	Window     time.Duration
	PerAddr    int
	PerAccount int
}

func (t Throttle) active() bool {
	return t.Window > 0 && (t.PerAddr > 0 || t.PerAccount > 0)
}

func (t Throttle) key(scope, subject string) string {
	return throttlePrefix + ":" + t.Surface + ":" + scope + ":" + subject
}

// ThrottleAuth rejects a request with 429 and a Retry-After header once
// either counter passes its limit. Both counters advance on every attempt.
func ThrottleAuth(t Throttle, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !t.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			checks := make([]throttleCheck, 0, 2)
			if addr := remoteAddr(r); t.PerAddr > 0 && addr != "" {
				checks = append(checks, throttleCheck{scope: "addr", subject: addr, limit: t.PerAddr})
			}
			if email := accountEmail(body); t.PerAccount > 0 && email != "" {
				checks = append(checks, throttleCheck{scope: "acct", subject: digest(email), limit: t.PerAccount})
			}

			for _, c := range checks {
				count, err := store.IncrWithTTL(ctx, t.key(c.scope, c.subject), t.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "throttle counter"))
					return
				}
				if count > int64(c.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"surface":  t.Surface,
							"scope":    c.scope,
							"subject":  c.subject,
							"attempts": count,
							"limit":    c.limit,
						}), "auth attempt throttled")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(t.Window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
						WithDetails(map[string]any{"surface": t.Surface, "scope": c.scope}))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

type throttleCheck struct {
	scope   string
	subject string
	limit   int
}

func remoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func accountEmail(body []byte) string {
	var in struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &in) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(in.Email))
}

func digest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
