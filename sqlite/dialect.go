package sqlite

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/mattn/go-sqlite3"
)

// Dialect compiles statements for SQLite 3.35 or later (RETURNING, ON CONFLICT).
type Dialect struct{}

var _ query.Dialect = Dialect{}

func (Dialect) Name() string                      { return "sqlite" }
func (Dialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (Dialect) Quote(name string) string          { return query.QuoteDouble(name) }
func (Dialect) SupportsReturning() bool           { return true }

func (Dialect) ILike(column string, pattern any, negate bool) sq.Sqlizer {
	return query.LowerLike(column, pattern, negate)
}

// Match requires column to belong to an FTS table.
func (Dialect) Match(column string, text any) sq.Sqlizer {
	return sq.Expr(column+" MATCH ?", text)
}

func (d Dialect) UpsertSuffix(spec query.UpsertSpec) (sq.Sqlizer, error) {
	return query.OnConflictSuffix(d.Quote, "excluded", spec)
}

// PrepareValue stores booleans as 0/1 and times in the driver's own timestamp
// layout, so bound filter values compare equal to stored ones.
func (Dialect) PrepareValue(t schema.FieldType, value any) (any, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return v.Format(sqlite3.SQLiteTimestampFormats[0]), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.Format(sqlite3.SQLiteTimestampFormats[0]), nil
	}
	return query.PrepareJSON(t, value)
}

// parseTime reads a stored timestamp in any layout the driver recognises.
func parseTime(s string) (time.Time, bool) {
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
