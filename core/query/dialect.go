package query

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-crud/core/schema"
)

// UpsertSpec describes an insert that updates rows already present.
type UpsertSpec struct {
	Table           string
	ConflictColumns []string
	UpdateColumns   []string
	// Override replaces the incoming value of a column on conflict.
	Override map[string]any
}

// Dialect is the engine specific strategy the builder compiles against. The
// execution context picks one at construction time.
type Dialect interface {
	Name() string
	Placeholder() sq.PlaceholderFormat
	Quote(identifier string) string
	ILike(column string, pattern any, negate bool) sq.Sqlizer
	Match(column string, text any) sq.Sqlizer
	SupportsReturning() bool
	// UpsertSuffix renders the clause appended to a multi-row INSERT.
	UpsertSuffix(spec UpsertSpec) (sq.Sqlizer, error)
	// PrepareValue converts a Go value into something the driver can bind.
	PrepareValue(t schema.FieldType, value any) (any, error)
}

// QuoteDouble quotes an identifier with ANSI double quotes.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PrepareJSON encodes object and array values for text storage and leaves
// everything else alone.
func PrepareJSON(t schema.FieldType, value any) (any, error) {
	if value == nil || !t.IsJSON() {
		return value, nil
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", t, err)
	}
	return string(encoded), nil
}

// LowerLike renders case-insensitive matching for engines without ILIKE.
func LowerLike(column string, pattern any, negate bool) sq.Sqlizer {
	if negate {
		return sq.Expr("LOWER("+column+") NOT LIKE LOWER(?)", pattern)
	}
	return sq.Expr("LOWER("+column+") LIKE LOWER(?)", pattern)
}

// OnConflictSuffix renders ON CONFLICT ... DO UPDATE for engines that support it.
// excluded names the pseudo table holding the rejected row.
func OnConflictSuffix(quote func(string) string, excluded string, spec UpsertSpec) (sq.Sqlizer, error) {
	if len(spec.ConflictColumns) == 0 {
		return nil, fmt.Errorf("upsert into %s requires conflict columns", spec.Table)
	}
	conflict := make([]string, len(spec.ConflictColumns))
	for i, c := range spec.ConflictColumns {
		conflict[i] = quote(c)
	}
	if len(spec.UpdateColumns) == 0 {
		return sq.Expr("ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO NOTHING"), nil
	}

	sets := make([]string, len(spec.UpdateColumns))
	var args []any
	for i, c := range spec.UpdateColumns {
		if v, ok := spec.Override[c]; ok {
			sets[i] = quote(c) + " = ?"
			args = append(args, v)
			continue
		}
		sets[i] = quote(c) + " = " + excluded + "." + quote(c)
	}
	return sq.Expr("ON CONFLICT ("+strings.Join(conflict, ", ")+") DO UPDATE SET "+strings.Join(sets, ", "), args...), nil
}

// PostgresDialect targets PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) Name() string                      { return "postgres" }
func (PostgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }
func (PostgresDialect) Quote(name string) string          { return QuoteDouble(name) }
func (PostgresDialect) SupportsReturning() bool           { return true }

func (PostgresDialect) ILike(column string, pattern any, negate bool) sq.Sqlizer {
	if negate {
		return sq.NotILike{column: pattern}
	}
	return sq.ILike{column: pattern}
}

func (PostgresDialect) Match(column string, text any) sq.Sqlizer {
	return sq.Expr("to_tsvector("+column+") @@ plainto_tsquery(?)", text)
}

func (d PostgresDialect) UpsertSuffix(spec UpsertSpec) (sq.Sqlizer, error) {
	return OnConflictSuffix(d.Quote, "EXCLUDED", spec)
}

func (PostgresDialect) PrepareValue(t schema.FieldType, value any) (any, error) {
	return PrepareJSON(t, value)
}

// MySQLDialect targets MySQL and MariaDB.
type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

func (MySQLDialect) Name() string                      { return "mysql" }
func (MySQLDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (MySQLDialect) SupportsReturning() bool           { return false }

func (MySQLDialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDialect) ILike(column string, pattern any, negate bool) sq.Sqlizer {
	return LowerLike(column, pattern, negate)
}

func (MySQLDialect) Match(column string, text any) sq.Sqlizer {
	return sq.Expr("MATCH ("+column+") AGAINST (?)", text)
}

func (d MySQLDialect) UpsertSuffix(spec UpsertSpec) (sq.Sqlizer, error) {
	if len(spec.UpdateColumns) == 0 {
		// Re-assigning any conflict column turns the insert into a no-op update.
		if len(spec.ConflictColumns) == 0 {
			return nil, fmt.Errorf("upsert into %s requires conflict columns", spec.Table)
		}
		c := d.Quote(spec.ConflictColumns[0])
		return sq.Expr("ON DUPLICATE KEY UPDATE " + c + " = " + c), nil
	}
	sets := make([]string, len(spec.UpdateColumns))
	var args []any
	for i, c := range spec.UpdateColumns {
		if v, ok := spec.Override[c]; ok {
			sets[i] = d.Quote(c) + " = ?"
			args = append(args, v)
			continue
		}
		sets[i] = d.Quote(c) + " = VALUES(" + d.Quote(c) + ")"
	}
	return sq.Expr("ON DUPLICATE KEY UPDATE "+strings.Join(sets, ", "), args...), nil
}

func (MySQLDialect) PrepareValue(t schema.FieldType, value any) (any, error) {
	return PrepareJSON(t, value)
}
