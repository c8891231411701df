package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gallotrack-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/gallotrack-backend/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{BillingTable: "billing_events"}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{BillingTable: " "}); err == nil {
		t.Fatal("expected error when billing table missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"plan_code": "premium"})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid {
		t.Fatal("expected json to be marked valid")
	}

	nj, err = EncodeJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error for nil json: %v", err)
	}
	if nj.Valid {
		t.Fatal("expected nil json to be invalid")
	}

	raw := json.RawMessage(`{"payment_id":3}`)
	nj, err = EncodeJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error encoding raw json: %v", err)
	}
	if nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	if err := writer.InsertBilling(context.Background(), types.BillingEventRow{EventID: "evt-1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "billing_events" {
		t.Fatalf("expected billing table on retry, got %s", fake.calls[1].table)
	}
	saver, ok := fake.calls[0].first.(*cbigquery.StructSaver)
	if !ok {
		t.Fatalf("expected struct saver row, got %T", fake.calls[0].first)
	}
	if saver.InsertID != "evt-1" {
		t.Fatalf("expected event id as insert id, got %q", saver.InsertID)
	}
}

func TestWriterStopsWhenContextEnds(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.retry.InitialBackoff = time.Hour
	writer.retry.MaximumBackoff = time.Hour
	fake.responses = []error{status.Error(codes.Unavailable, "try later")}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := writer.InsertBilling(ctx, types.BillingEventRow{EventID: "evt-4"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertBilling(context.Background(), types.BillingEventRow{EventID: "evt-2"})
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		t.Fatalf("expected the 400 to surface, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := status.Error(codes.Unavailable, "try later")
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	err := writer.InsertBilling(context.Background(), types.BillingEventRow{EventID: "evt-3"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if len(fake.calls) != writer.retry.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", writer.retry.MaxAttempts, len(fake.calls))
	}
}

func TestTransientClassification(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":             {err: nil, want: false},
		"plain":           {err: errors.New("boom"), want: false},
		"http 429":        {err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		"grpc internal":   {err: status.Error(codes.Internal, "x"), want: true},
		"grpc invalid":    {err: status.Error(codes.InvalidArgument, "x"), want: false},
		"row errors mix":  {err: cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}}}, want: false},
		"row errors 503s": {err: cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}}}, want: true},
		"wrapped grpc":    {err: fmt.Errorf("insert: %w", status.Error(codes.Unavailable, "x")), want: true},
		"http 501":        {err: &googleapi.Error{Code: http.StatusNotImplemented}, want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := transient(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type insertCall struct {
	table string
	first any
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	call := insertCall{table: table}
	if len(rows) > 0 {
		call.first = rows[0]
	}
	f.calls = append(f.calls, call)
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	writer, err := New(&pkgbigquery.Client{}, Config{
		BillingTable: "billing_events",
		RetryPolicy:  RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}

	fake := &fakeInserter{}
	writer.client = fake
	return writer, fake
}
