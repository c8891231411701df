// Package writer streams billing facts decoded from the outbox into the
// BigQuery billing_events table.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gallotrack-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/gallotrack-backend/pkg/bigquery"
)

type Config struct {
	BillingTable string
	RetryPolicy  RetryPolicy
}

// RetryPolicy bounds inserts that fail with a transient BigQuery error.
// Zero values take 3 attempts backing off from 250ms to 2s.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type BigQueryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.BillingTable)
	if table == "" {
		return nil, errors.New("billing table is required")
	}
	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = 250 * time.Millisecond
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = 2 * time.Second
	}
	retry.MaximumBackoff = max(retry.MaximumBackoff, retry.InitialBackoff)
	return &BigQueryWriter{client: client, table: table, retry: retry}, nil
}

// InsertBilling writes one billing row keyed by its event id, which BigQuery
// uses to drop redelivered duplicates.
func (w *BigQueryWriter) InsertBilling(ctx context.Context, row types.BillingEventRow) error {
	saver := &cbigquery.StructSaver{Struct: &row, InsertID: row.EventID}
	rows := []any{saver}

	err := backoff.Retry(func() error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(w.schedule(), uint64(w.retry.MaxAttempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("insert %s row %s: %w", w.table, row.EventID, err)
	}
	return nil
}

func (w *BigQueryWriter) schedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retry.InitialBackoff
	b.MaxInterval = w.retry.MaximumBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

var retryableHTTP = []int{
	http.StatusTooManyRequests,
	http.StatusRequestTimeout,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// transient reports whether err is worth another insert. Row level failures
// qualify only when every row and every cause is itself transient.
func transient(err error) bool {
	var rowsErr cbigquery.PutMultiError
	if errors.As(err, &rowsErr) {
		return len(rowsErr) > 0 && !slices.ContainsFunc(rowsErr, func(r cbigquery.RowInsertionError) bool {
			return !allTransient(r.Errors)
		})
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		return allTransient(rowErr.Errors)
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return slices.Contains(retryableHTTP, apiErr.Code)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs cbigquery.MultiError) bool {
	return len(errs) > 0 && !slices.ContainsFunc(errs, func(e error) bool { return !transient(e) })
}

// EncodeJSON renders payload for a BigQuery JSON column. Empty payloads
// become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
