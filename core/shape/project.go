package shape

import (
	"fmt"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/utils"
)

// OutputColumns lists the top-level keys a shaped record can carry.
func OutputColumns(baseColumns []string, joins []query.PlannedJoin, nest bool) []string {
	keys := append([]string{}, baseColumns...)
	for _, j := range joins {
		if nest {
			keys = append(keys, j.OutputKey())
			continue
		}
		for _, column := range j.Columns {
			keys = append(keys, j.FlatKey(column))
		}
	}
	return keys
}

// ValidateProjection checks an allowlist against the known output keys. Unknown
// names are reported together.
func ValidateProjection(allowlist []string, known []string) error {
	if len(allowlist) == 0 {
		return nil
	}
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	var issues []core.Issue
	for _, name := range allowlist {
		if !set[name] {
			issues = append(issues, core.Issue{
				Code:     "UNKNOWN_COLUMN",
				Message:  fmt.Sprintf("column '%s' is not part of the result", name),
				Path:     name,
				Severity: "error",
			})
		}
	}
	if len(issues) > 0 {
		return &core.ValidationError{Issues: issues}
	}
	return nil
}

// Project keeps only the allowlisted keys of each document. An empty allowlist
// keeps everything.
func Project(docs []schema.Document, allowlist []string) []schema.Document {
	if len(allowlist) == 0 {
		return docs
	}
	out := make([]schema.Document, len(docs))
	for i, doc := range docs {
		projected := make(schema.Document, len(allowlist))
		for _, key := range allowlist {
			if v, ok := doc[key]; ok {
				projected[key] = v
			}
		}
		out[i] = projected
	}
	return out
}

// Columns returns the allowlist described by a typed output schema.
func Columns[T any]() []string {
	return utils.FieldNames[T]()
}

// Convert decodes a shaped document into T. Failures are validation errors.
func Convert[T any](doc schema.Document) (T, error) {
	result, err := utils.MapToStruct[T](doc)
	if err != nil {
		var zero T
		return zero, &core.ValidationError{Issues: []core.Issue{{
			Code:     "CONVERSION_FAILED",
			Message:  err.Error(),
			Severity: "error",
		}}}
	}
	return result, nil
}

// ConvertAll decodes every document into T, stopping at the first failure.
func ConvertAll[T any](docs []schema.Document) ([]T, error) {
	out := make([]T, len(docs))
	for i, doc := range docs {
		v, err := Convert[T](doc)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
