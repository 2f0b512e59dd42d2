package persistence

import (
	"context"

	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
)

// ExecResult reports the outcome of a statement that returns no rows.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// ExecutionContext is the engine session the façade runs statements on. It picks
// the SQL dialect, runs compiled statements and ends units of work.
//
// Errors from the underlying driver, including context cancellation, are returned
// as they are (possibly wrapped) and never reinterpreted.
type ExecutionContext interface {
	// Dialect returns the dialect statements must be compiled for.
	Dialect() query.Dialect

	// Query runs a statement that returns rows. Values are coerced using
	// Statement.Types.
	Query(ctx context.Context, stmt query.Statement) ([]schema.Document, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt query.Statement) (ExecResult, error)

	// Commit makes the work done so far durable. Contexts without a pending unit
	// of work treat it as a no-op.
	Commit(ctx context.Context) error

	// Rollback discards the work done since the last commit.
	Rollback(ctx context.Context) error
}
