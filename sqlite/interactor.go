// Package sqlite provides the SQLite execution context for the CRUD façade: a
// persistence.ExecutionContext over database/sql and mattn/go-sqlite3, the SQLite
// dialect and DDL generation from schema models.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-crud/core/persistence"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"go.uber.org/zap"
)

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Interactor runs compiled statements against SQLite.
//
// In autocommit mode every statement commits on its own and Commit and Rollback
// are no-ops. In session mode the first statement begins a transaction that
// stays open until Commit or Rollback; the statement after that begins the next
// one.
type Interactor struct {
	db      *sql.DB
	logger  *zap.Logger
	session bool

	mu sync.Mutex
	tx *sql.Tx
}

var _ persistence.ExecutionContext = (*Interactor)(nil)

// New creates an autocommit interactor.
func New(db *sql.DB, logger *zap.Logger) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{db: db, logger: logger}
}

// NewSession creates an interactor that groups statements into transactions
// ended by Commit or Rollback.
func NewSession(db *sql.DB, logger *zap.Logger) *Interactor {
	i := New(db, logger)
	i.session = true
	return i
}

// Open opens a SQLite database. In-memory databases are limited to a single
// connection, since every connection would otherwise see its own empty database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	return db, nil
}

// DB returns the underlying connection pool.
func (i *Interactor) DB() *sql.DB {
	return i.db
}

// Dialect returns the SQLite dialect.
func (i *Interactor) Dialect() query.Dialect {
	return Dialect{}
}

// runner returns the open transaction in session mode, beginning one if needed,
// and the pool otherwise.
func (i *Interactor) runner(ctx context.Context) (dbRunner, error) {
	if !i.session {
		return i.db, nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tx == nil {
		tx, err := i.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		i.logger.Debug("Transaction started")
		i.tx = tx
	}
	return i.tx, nil
}

// Query runs a statement that returns rows and coerces their values by the
// statement's type map.
func (i *Interactor) Query(ctx context.Context, stmt query.Statement) ([]schema.Document, error) {
	runner, err := i.runner(ctx)
	if err != nil {
		return nil, err
	}
	i.logger.Debug("Executing SQL query", zap.String("sql", stmt.SQL), zap.Any("params", stmt.Args))

	rows, err := runner.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		i.logger.Error("Failed to execute query", zap.Error(err), zap.String("sql", stmt.SQL))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return readRows(i.logger, stmt.Types, rows)
}

// Exec runs a statement that returns no rows.
func (i *Interactor) Exec(ctx context.Context, stmt query.Statement) (persistence.ExecResult, error) {
	runner, err := i.runner(ctx)
	if err != nil {
		return persistence.ExecResult{}, err
	}
	i.logger.Debug("Executing SQL statement", zap.String("sql", stmt.SQL), zap.Any("params", stmt.Args))

	result, err := runner.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		i.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", stmt.SQL))
		return persistence.ExecResult{}, fmt.Errorf("failed to execute statement: %w", err)
	}
	var out persistence.ExecResult
	if out.RowsAffected, err = result.RowsAffected(); err != nil {
		return out, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if out.LastInsertID, err = result.LastInsertId(); err != nil {
		return out, fmt.Errorf("failed to read last insert id: %w", err)
	}
	return out, nil
}

// Commit commits the open transaction. Without one it does nothing.
func (i *Interactor) Commit(ctx context.Context) error {
	tx := i.take()
	if tx == nil {
		return nil
	}
	i.logger.Debug("Committing transaction")
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction. Without one it does nothing.
func (i *Interactor) Rollback(ctx context.Context) error {
	tx := i.take()
	if tx == nil {
		return nil
	}
	i.logger.Debug("Rolling back transaction")
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (i *Interactor) take() *sql.Tx {
	i.mu.Lock()
	defer i.mu.Unlock()
	tx := i.tx
	i.tx = nil
	return tx
}

// readRows scans all rows into documents, converting driver values to the Go
// types of the labels' declared field types.
func readRows(logger *zap.Logger, types map[string]schema.FieldType, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]schema.Document, 0)
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
				continue
			}
			fieldType, ok := types[col]
			if !ok {
				logger.Warn("Column not found in type map, using raw value", zap.String("column", col))
				row[col] = val
				continue
			}
			row[col] = coerce(fieldType, val)
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

func coerce(t schema.FieldType, val any) any {
	switch t {
	case schema.FieldTypeBoolean:
		switch v := val.(type) {
		case int64:
			return v != 0
		case bool:
			return v
		}
	case schema.FieldTypeString, schema.FieldTypeEnum:
		if b, ok := val.([]byte); ok {
			return string(b)
		}
	case schema.FieldTypeInteger:
		if f, ok := val.(float64); ok {
			return int64(f)
		}
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		if n, ok := val.(int64); ok {
			return float64(n)
		}
	case schema.FieldTypeDatetime:
		switch v := val.(type) {
		case time.Time:
			return v
		case string:
			if parsed, ok := parseTime(v); ok {
				return parsed
			}
		case []byte:
			if parsed, ok := parseTime(string(v)); ok {
				return parsed
			}
		}
	case schema.FieldTypeObject, schema.FieldTypeArray:
		var raw []byte
		switch v := val.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		}
		if raw != nil {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				return decoded
			}
		}
	}
	return val
}
