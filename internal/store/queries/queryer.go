// Package queries holds the generated output of cmd/d1c: one row struct
// and accessor function per annotated query in internal/sqlqueries.
package queries

import (
	"context"
	"database/sql"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, so generated
// accessors can run standalone or inside a caller-managed transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
