package query

import (
	"math"

	"github.com/asaidimu/go-crud/core"
	"github.com/tidwall/gjson"
)

// ParseFiltersJSON reads a JSON object of keyword filters, keeping the document's
// key order. Nested objects (values of `_or`, `col__or`, `col__not`) become nested
// Filters, arrays become []any and integral numbers become int64.
func ParseFiltersJSON(document string) (Filters, error) {
	if !gjson.Valid(document) {
		return nil, core.NewConfigError("filters", "filter document is not valid JSON")
	}
	result := gjson.Parse(document)
	if !result.IsObject() {
		return nil, core.NewConfigError("filters", "filter document must be a JSON object, got %s", result.Type)
	}
	return objectFilters(result), nil
}

func objectFilters(object gjson.Result) Filters {
	filters := Filters{}
	object.ForEach(func(key, value gjson.Result) bool {
		filters = append(filters, F(key.String(), jsonValue(value)))
		return true
	})
	return filters
}

func jsonValue(value gjson.Result) any {
	switch {
	case value.IsObject():
		return objectFilters(value)
	case value.IsArray():
		items := value.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	}

	switch value.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		n := value.Float()
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return value.Int()
		}
		return n
	default:
		return value.String()
	}
}
