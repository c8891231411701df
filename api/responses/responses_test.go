package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"id": 3})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body.Error
}

func TestWriteErrorQuotaExceeded(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeQuotaExceeded, "trainings limit reached for this cock").
		WithReason("LIMIT_REACHED").
		WithDetails(map[string]any{"limit": 5})
	WriteError(context.Background(), nil, w, err)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", w.Code)
	}
	apiErr := decodeError(t, w)
	if apiErr.Code != string(pkgerrors.CodeQuotaExceeded) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
	if apiErr.Message != "trainings limit reached for this cock" {
		t.Fatalf("expected service message to pass through, got %q", apiErr.Message)
	}
	if apiErr.Reason != "LIMIT_REACHED" {
		t.Fatalf("expected reason LIMIT_REACHED got %q", apiErr.Reason)
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused on 10.0.0.3"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
	apiErr := decodeError(t, w)
	if apiErr.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
	if apiErr.Message == "pq: connection refused on 10.0.0.3" {
		t.Fatalf("internal error message leaked")
	}
	if apiErr.Details != nil {
		t.Fatalf("expected no details on internal errors")
	}
}

func TestWriteErrorIdempotencyConflict(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
	if apiErr := decodeError(t, w); apiErr.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
}
