package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
)

// TableOptions configures DDL generation.
type TableOptions struct {
	IfNotExists bool
	// ForeignKeys emits REFERENCES clauses for columns that declare them.
	ForeignKeys bool
}

// DefaultTableOptions returns the options CreateTable uses when given nil.
func DefaultTableOptions() *TableOptions {
	return &TableOptions{IfNotExists: true, ForeignKeys: true}
}

// CreateTable creates the table of a model.
func (i *Interactor) CreateTable(ctx context.Context, model *schema.Model, opts *TableOptions) error {
	ddl, err := CreateTableSQL(model, opts)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", model.Name, err)
	}
	if _, err := i.Exec(ctx, query.Statement{SQL: ddl}); err != nil {
		return fmt.Errorf("failed to create table %s: %w", model.Name, err)
	}
	return nil
}

// DropTable drops the table of a model if it exists.
func (i *Interactor) DropTable(ctx context.Context, name string) error {
	ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s;", query.QuoteDouble(name))
	if _, err := i.Exec(ctx, query.Statement{SQL: ddl}); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// TableExists reports whether a table exists.
func (i *Interactor) TableExists(ctx context.Context, name string) (bool, error) {
	rows, err := i.Query(ctx, query.Statement{
		SQL:   "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;",
		Args:  []any{name},
		Types: map[string]schema.FieldType{"name": schema.FieldTypeString},
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// CreateTableSQL renders CREATE TABLE for a model.
func CreateTableSQL(model *schema.Model, opts *TableOptions) (string, error) {
	if opts == nil {
		opts = DefaultTableOptions()
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if opts.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(query.QuoteDouble(model.Name) + " (\n")

	columns := make([]string, 0, len(model.Columns)+1)
	for _, col := range model.Columns {
		def, err := columnDefinition(col, opts)
		if err != nil {
			return "", fmt.Errorf("error on column '%s': %w", col.Name, err)
		}
		columns = append(columns, "    "+def)
	}

	pks := model.PrimaryKeys()
	quoted := make([]string, len(pks))
	for i, pk := range pks {
		quoted[i] = query.QuoteDouble(pk)
	}
	columns = append(columns, "    PRIMARY KEY ("+strings.Join(quoted, ", ")+")")

	sb.WriteString(strings.Join(columns, ",\n"))
	sb.WriteString("\n);")
	return sb.String(), nil
}

func columnDefinition(col schema.Column, opts *TableOptions) (string, error) {
	parts := []string{query.QuoteDouble(col.Name), ColumnType(col.Type)}

	if !col.Nullable && (col.Required || col.PrimaryKey) {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != nil {
		def, err := formatDefault(col.Default, col.Type)
		if err != nil {
			return "", err
		}
		parts = append(parts, "DEFAULT "+def)
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	if col.Type == schema.FieldTypeEnum {
		values := make([]string, len(col.Values))
		for i, v := range col.Values {
			values[i], _ = formatDefault(v, schema.FieldTypeString)
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", query.QuoteDouble(col.Name), strings.Join(values, ", ")))
	}
	if opts.ForeignKeys && col.References != nil {
		parts = append(parts, fmt.Sprintf("REFERENCES %s(%s)", query.QuoteDouble(col.References.Model), query.QuoteDouble(col.References.Column)))
	}
	return strings.Join(parts, " "), nil
}

// ColumnType maps a field type to its SQLite column type.
func ColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return "TEXT"
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	case schema.FieldTypeDatetime:
		return "DATETIME"
	case schema.FieldTypeObject, schema.FieldTypeArray:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func formatDefault(value any, t schema.FieldType) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch t {
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDatetime:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", value), "'", "''") + "'", nil
	case schema.FieldTypeNumber, schema.FieldTypeDecimal, schema.FieldTypeInteger:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "1", nil
		}
		return "0", nil
	case schema.FieldTypeObject, schema.FieldTypeArray:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal default value to JSON: %w", err)
		}
		return "'" + strings.ReplaceAll(string(encoded), "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", t)
	}
}
