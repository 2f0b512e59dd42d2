package schema

import (
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-crud/core"
)

// Mode selects how strictly a payload is checked.
type Mode int

const (
	// ModeCreate requires every Required column to be present.
	ModeCreate Mode = iota
	// ModePartial checks only the columns present in the payload.
	ModePartial
)

// Validator checks write payloads against a model: unknown columns, value types,
// enum membership and, on create, required columns.
type Validator struct {
	model  *Model
	issues []core.Issue
}

// NewValidator creates a reusable validator for a model.
func NewValidator(model *Model) *Validator {
	return &Validator{model: model}
}

// Validate returns whether the payload is valid and the issues found.
func (v *Validator) Validate(data map[string]any, mode Mode) (bool, []core.Issue) {
	v.issues = make([]core.Issue, 0)

	for _, col := range v.model.Columns {
		value, exists := data[col.Name]
		if !exists {
			if mode == ModeCreate && col.Required && col.Default == nil {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", col.Name), col.Name)
			}
			continue
		}
		v.validateValue(value, &col)
	}

	for key := range data {
		if !v.model.HasColumn(key) {
			v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in model %s", key, v.model.Name), key)
		}
	}

	return len(v.issues) == 0, v.issues
}

// Check is Validate returning a *core.ValidationError when issues were found.
func (v *Validator) Check(data map[string]any, mode Mode) error {
	if ok, issues := v.Validate(data, mode); !ok {
		return &core.ValidationError{Issues: issues}
	}
	return nil
}

func (v *Validator) validateValue(value any, col *Column) {
	if value == nil {
		if col.Required && !col.Nullable {
			v.addIssue("NULL_VALUE", "Field cannot be null", col.Name)
		}
		return
	}

	switch col.Type {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			v.typeMismatch("string", value, col.Name)
		}
	case FieldTypeInteger:
		if !isIntegerType(value) {
			v.typeMismatch("integer", value, col.Name)
		}
	case FieldTypeNumber, FieldTypeDecimal:
		if !isNumericType(value) {
			v.typeMismatch("number", value, col.Name)
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			v.typeMismatch("boolean", value, col.Name)
		}
	case FieldTypeDatetime:
		switch value.(type) {
		case time.Time, *time.Time, string:
		default:
			v.typeMismatch("datetime", value, col.Name)
		}
	case FieldTypeArray:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			v.typeMismatch("array", value, col.Name)
		}
	case FieldTypeObject:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map && rv.Kind() != reflect.Struct && rv.Kind() != reflect.Pointer {
			v.typeMismatch("object", value, col.Name)
		}
	case FieldTypeEnum:
		for _, allowed := range col.Values {
			if core.Compare(allowed, value) == 0 {
				return
			}
		}
		v.addIssue("INVALID_ENUM_VALUE", fmt.Sprintf("Value '%v' is not one of %v", value, col.Values), col.Name)
	}
}

func (v *Validator) typeMismatch(expected string, value any, path string) {
	v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected %s, got %T", expected, value), path)
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, core.Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}

func isNumericType(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isIntegerType(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		// JSON decoded payloads carry whole numbers as float64.
		f := value.(float64)
		return f == float64(int64(f))
	}
	return false
}
