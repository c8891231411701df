package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: the typed code and
// reason, every layer of the wrap chain, and the Postgres diagnostics when
// a driver error sits underneath (a duplicate ring number surfaces as
// pg_constraint=uq_cocks_owner_ring, for example).
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{"error": err.Error()}
	if te := As(err); te != nil {
		fields["error_code"] = te.Code()
		if te.Reason() != "" {
			fields["error_reason"] = te.Reason()
		}
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		addPG(fields, pgxErr.Code, pgxErr.TableName, pgxErr.ConstraintName, pgxErr.Detail)
	case errors.As(err, &pqErr):
		addPG(fields, string(pqErr.Code), pqErr.Table, pqErr.Constraint, pqErr.Detail)
	}
	return fields
}

func addPG(fields map[string]any, code, table, constraint, detail string) {
	for k, v := range map[string]string{
		"pg_code":       code,
		"pg_table":      table,
		"pg_constraint": constraint,
		"pg_detail":     detail,
	} {
		if v != "" {
			fields[k] = v
		}
	}
}
