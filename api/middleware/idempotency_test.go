package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

type memReplayStore struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemReplayStore() *memReplayStore {
	return &memReplayStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func (m *memReplayStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memReplayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key], m.ttl[key] = asString(value), ttl
	return nil
}

func (m *memReplayStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memReplayStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memReplayStore) IdempotencyKey(scope, id string) string { return scope + "#" + id }

type cockCreator struct {
	calls  atomic.Int32
	status int
}

func (c *cockCreator) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	n := c.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	_, _ = fmt.Fprintf(w, `{"data":{"id":%d}}`, n)
}

func postCock(h http.Handler, owner uint64, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cocks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	req = req.WithContext(WithPrincipal(req.Context(), owner, false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestIdempotentReplaysFirstReply(t *testing.T) {
	store := newMemReplayStore()
	next := &cockCreator{status: http.StatusCreated}
	h := Idempotent(store, 24*time.Hour, nil)(next)

	first := postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	second := postCock(h, 7, "k-1", `{"name":"Rocky"}`)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, 24*time.Hour, store.ttl["7|POST|/api/v1/cocks#k-1"])
}

func TestIdempotentRequiresKey(t *testing.T) {
	h := Idempotent(newMemReplayStore(), time.Hour, nil)(&cockCreator{status: http.StatusCreated})
	rec := postCock(h, 7, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestIdempotentRefusesDifferentBody(t *testing.T) {
	next := &cockCreator{status: http.StatusCreated}
	h := Idempotent(newMemReplayStore(), time.Hour, nil)(next)

	postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	rec := postCock(h, 7, "k-1", `{"name":"Kelso"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestIdempotentBlocksConcurrentDuplicate(t *testing.T) {
	store := newMemReplayStore()
	var h http.Handler
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a retry lands while the first request is still running
		dup := postCock(h, 7, "k-1", `{"name":"Rocky"}`)
		assert.Equal(t, http.StatusConflict, dup.Code)
		w.WriteHeader(http.StatusCreated)
	})
	h = Idempotent(store, time.Hour, nil)(inner)

	rec := postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIdempotentForgetsServerErrors(t *testing.T) {
	store := newMemReplayStore()
	next := &cockCreator{status: http.StatusServiceUnavailable}
	h := Idempotent(store, time.Hour, nil)(next)

	postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	assert.Empty(t, store.data)

	next.status = http.StatusCreated
	rec := postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestIdempotentKeysArePerOwner(t *testing.T) {
	next := &cockCreator{status: http.StatusCreated}
	h := Idempotent(newMemReplayStore(), time.Hour, nil)(next)

	postCock(h, 7, "k-1", `{"name":"Rocky"}`)
	rec := postCock(h, 8, "k-1", `{"name":"Rocky"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestFingerprintIgnoresMultipartBoundary(t *testing.T) {
	build := func(boundary string) *http.Request {
		body := "--" + boundary + "\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\nJPEG\r\n--" + boundary + "--\r\n"
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cocks/3/media/principal", strings.NewReader(body))
		req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
		return req
	}
	a, b := build("aaaa1111"), build("bbbb2222")
	bodyA := []byte("--aaaa1111\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\nJPEG\r\n--aaaa1111--\r\n")
	bodyB := []byte("--bbbb2222\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\nJPEG\r\n--bbbb2222--\r\n")
	assert.Equal(t, fingerprint(a, bodyA), fingerprint(b, bodyB))
}
