package db

import (
	"context"
	"database/sql"
)

// DBTX is the subset of sql.DB and sql.Tx used by the repositories, so
// that a store save and a queue enqueue can share one transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
