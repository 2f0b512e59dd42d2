// Package schema describes the models the CRUD layer operates on: an entity name,
// its ordered columns with declared types, the (possibly composite) primary key and
// optional foreign-key references used to infer join conditions.
package schema

import (
	"encoding/json"
	"fmt"
)

// Document is a single record as it flows through the library.
type Document map[string]any

// FieldType represents the column types the library knows how to bind and coerce.
type FieldType string

const (
	FieldTypeString   FieldType = "string"   // Text data
	FieldTypeInteger  FieldType = "integer"  // Whole numbers
	FieldTypeNumber   FieldType = "number"   // Floating point numbers
	FieldTypeDecimal  FieldType = "decimal"  // Fixed point numbers, handled as float64
	FieldTypeBoolean  FieldType = "boolean"  // True/false values
	FieldTypeDatetime FieldType = "datetime" // Timestamps, handled as time.Time
	FieldTypeEnum     FieldType = "enum"     // One out of a set of pre-defined values
	FieldTypeObject   FieldType = "object"   // JSON object stored in a text column
	FieldTypeArray    FieldType = "array"    // JSON array stored in a text column
)

var knownFieldTypes = map[FieldType]struct{}{
	FieldTypeString:   {},
	FieldTypeInteger:  {},
	FieldTypeNumber:   {},
	FieldTypeDecimal:  {},
	FieldTypeBoolean:  {},
	FieldTypeDatetime: {},
	FieldTypeEnum:     {},
	FieldTypeObject:   {},
	FieldTypeArray:    {},
}

// IsJSON reports whether values of this type are stored as encoded JSON.
func (t FieldType) IsJSON() bool {
	return t == FieldTypeObject || t == FieldTypeArray
}

// ForeignKey references a column on another model.
type ForeignKey struct {
	Model  string `json:"model"`
	Column string `json:"column"`
}

// Column defines a single column of a model.
type Column struct {
	Name       string      `json:"name"`
	Type       FieldType   `json:"type"`
	PrimaryKey bool        `json:"primaryKey,omitempty"`
	Required   bool        `json:"required,omitempty"`
	Nullable   bool        `json:"nullable,omitempty"`
	Unique     bool        `json:"unique,omitempty"`
	Values     []any       `json:"values,omitempty"`
	Default    any         `json:"default,omitempty"`
	References *ForeignKey `json:"references,omitempty"`
}

// Model is the descriptor of a table. Column order matters: it is the order of
// SELECT lists and of the primary key tuple.
type Model struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`

	index map[string]int
}

// NewModel builds a model and validates it.
func NewModel(name string, columns ...Column) (*Model, error) {
	m := &Model{Name: name, Columns: columns}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MustModel is NewModel for package-level declarations and tests.
func MustModel(name string, columns ...Column) *Model {
	m, err := NewModel(name, columns...)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseModel decodes a JSON model descriptor and validates it.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error unmarshaling model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the descriptor for structural problems and builds the column index.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("model %s has no columns", m.Name)
	}

	index := make(map[string]int, len(m.Columns))
	hasPrimary := false
	for i, col := range m.Columns {
		if col.Name == "" {
			return fmt.Errorf("model %s: column %d has no name", m.Name, i)
		}
		if _, dup := index[col.Name]; dup {
			return fmt.Errorf("model %s: duplicate column %s", m.Name, col.Name)
		}
		if _, ok := knownFieldTypes[col.Type]; !ok {
			return fmt.Errorf("model %s: column %s has unsupported type %q", m.Name, col.Name, col.Type)
		}
		if col.Type == FieldTypeEnum && len(col.Values) == 0 {
			return fmt.Errorf("model %s: enum column %s declares no values", m.Name, col.Name)
		}
		index[col.Name] = i
		hasPrimary = hasPrimary || col.PrimaryKey
	}
	if !hasPrimary {
		return fmt.Errorf("model %s has no primary key", m.Name)
	}

	m.index = index
	return nil
}

func (m *Model) position(name string) (int, bool) {
	if m.index != nil {
		i, ok := m.index[name]
		return i, ok
	}
	for i, col := range m.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Column returns the named column definition.
func (m *Model) Column(name string) (*Column, bool) {
	i, ok := m.position(name)
	if !ok {
		return nil, false
	}
	return &m.Columns[i], true
}

// HasColumn reports whether the model declares the column.
func (m *Model) HasColumn(name string) bool {
	_, ok := m.position(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (m *Model) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKeys returns the primary key column names in key order.
func (m *Model) PrimaryKeys() []string {
	var keys []string
	for _, col := range m.Columns {
		if col.PrimaryKey {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// Types maps every column name to its declared type.
func (m *Model) Types() map[string]FieldType {
	types := make(map[string]FieldType, len(m.Columns))
	for _, col := range m.Columns {
		types[col.Name] = col.Type
	}
	return types
}

// KeyOf extracts the primary key tuple of a document. The second return value is
// false when every key column is null, which is how unmatched outer-join rows look.
func (m *Model) KeyOf(doc Document) ([]any, bool) {
	keys := m.PrimaryKeys()
	values := make([]any, len(keys))
	present := false
	for i, k := range keys {
		values[i] = doc[k]
		if doc[k] != nil {
			present = true
		}
	}
	return values, present
}
