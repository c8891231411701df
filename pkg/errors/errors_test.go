package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeQuotaExceeded, status: http.StatusPaymentRequired, publicMsg: "plan limit reached", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestReasonTagging(t *testing.T) {
	err := New(CodeConflict, "code already used").WithReason("CODE_TAKEN")
	wrapped := fmt.Errorf("create cock: %w", err)

	if !HasReason(wrapped, "CODE_TAKEN") {
		t.Fatalf("expected reason to be found through wrapping")
	}
	if HasReason(wrapped, "CYCLE_DETECTED") {
		t.Fatalf("unexpected reason match")
	}
	if HasReason(stdErrors.New("plain"), "CODE_TAKEN") {
		t.Fatalf("plain errors carry no reason")
	}
	if !IsCode(wrapped, CodeConflict) {
		t.Fatalf("expected conflict code")
	}
}

func TestLogFieldsIncludesChainAndReason(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := Wrap(CodeDependency, cause, "upload failed").WithReason("STORAGE_WRITE")

	f := LogFields(err)
	if f["error_code"] != CodeDependency {
		t.Fatalf("expected dependency code, got %v", f["error_code"])
	}
	if f["error_reason"] != "STORAGE_WRITE" {
		t.Fatalf("expected reason, got %v", f["error_reason"])
	}
	if chain, _ := f["error_chain"].([]string); len(chain) != 2 {
		t.Fatalf("expected chain of 2, got %v", f["error_chain"])
	}
	if _, ok := f["pg_code"]; ok {
		t.Fatalf("non-postgres error must not carry pg fields")
	}
}

func TestLogFieldsSurfacesConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", TableName: "cocks", ConstraintName: "uq_cocks_owner_ring"}
	f := LogFields(Wrap(CodeConflict, fmt.Errorf("insert cock: %w", pgErr), "ring taken"))
	if f["pg_constraint"] != "uq_cocks_owner_ring" || f["pg_code"] != "23505" {
		t.Fatalf("unexpected pg fields %v", f)
	}
	if _, ok := f["pg_detail"]; ok {
		t.Fatalf("empty pg detail should be omitted")
	}
}
