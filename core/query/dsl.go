// Package query turns declarative, keyword style filters and join specifications
// into executable SQL. It holds the Filter Resolver, the Join Planner and the Query
// Builder, plus the dialect strategies they compile against.
package query

import (
	"sort"

	"github.com/asaidimu/go-crud/core/schema"
)

// Operator is a comparison operator token, the suffix in `column__operator`.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpIs         Operator = "is"
	OpIsNot      Operator = "is_not"
	OpLike       Operator = "like"
	OpNotLike    Operator = "notlike"
	OpILike      Operator = "ilike"
	OpNotILike   Operator = "notilike"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpContains   Operator = "contains"
	OpMatch      Operator = "match"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpBetween    Operator = "between"
)

// LogicalOperator combines predicates inside a PredicateGroup.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
	LogicalNot LogicalOperator = "not"
)

const (
	// Separator splits a filter key into column and operator.
	Separator = "__"
	// MultiFieldOrKey is the reserved key whose members are OR-ed across columns.
	MultiFieldOrKey = "_or"
)

// ColumnRef identifies a column on a specific entity (model name or alias).
type ColumnRef struct {
	Entity string           `json:"entity"`
	Column string           `json:"column"`
	Type   schema.FieldType `json:"type"`
}

// Predicate is one column, operator, value condition.
type Predicate struct {
	Column   ColumnRef `json:"column"`
	Operator Operator  `json:"operator"`
	Value    any       `json:"value,omitempty"`
}

// PredicateGroup combines members with OR or NOT. Column is set for single-column
// groups (`col__or`, `col__not`) and nil for the multi-field OR.
type PredicateGroup struct {
	Logic   LogicalOperator `json:"logic"`
	Column  *ColumnRef      `json:"column,omitempty"`
	Members []QueryFilter   `json:"members"`
}

// QueryFilter is either a Predicate or a PredicateGroup.
type QueryFilter struct {
	Predicate *Predicate      `json:"predicate,omitempty"`
	Group     *PredicateGroup `json:"group,omitempty"`
}

// Filter is one keyword constraint, e.g. {"price__between", []int{5, 20}}.
type Filter struct {
	Key   string
	Value any
}

// Filters is an ordered list of keyword constraints. Order is preserved through
// resolution and compilation.
type Filters []Filter

// F is shorthand for a single Filter.
func F(key string, value any) Filter {
	return Filter{Key: key, Value: value}
}

// Where builds Filters from alternating key/value arguments. A trailing key without
// a value is ignored.
func Where(pairs ...any) Filters {
	filters := make(Filters, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		filters = append(filters, Filter{Key: key, Value: pairs[i+1]})
	}
	return filters
}

// FiltersFromMap converts a map into Filters sorted by key, so the result does not
// depend on map iteration order.
func FiltersFromMap(m map[string]any) Filters {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	filters := make(Filters, len(keys))
	for i, k := range keys {
		filters[i] = Filter{Key: k, Value: m[k]}
	}
	return filters
}

// With returns a copy of the filters with one more entry appended.
func (f Filters) With(key string, value any) Filters {
	out := make(Filters, len(f), len(f)+1)
	copy(out, f)
	return append(out, Filter{Key: key, Value: value})
}

// Merge appends the other filters, skipping keys already present.
func (f Filters) Merge(other Filters) Filters {
	out := make(Filters, len(f), len(f)+len(other))
	copy(out, f)
	for _, o := range other {
		if !f.Has(o.Key) {
			out = append(out, o)
		}
	}
	return out
}

// Has reports whether a key is present.
func (f Filters) Has(key string) bool {
	for _, filter := range f {
		if filter.Key == key {
			return true
		}
	}
	return false
}

// Get returns the value of the first entry with the key.
func (f Filters) Get(key string) (any, bool) {
	for _, filter := range f {
		if filter.Key == key {
			return filter.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (f Filters) Keys() []string {
	keys := make([]string, len(f))
	for i, filter := range f {
		keys[i] = filter.Key
	}
	return keys
}

// Entity is a model as it takes part in a query, optionally under an alias.
type Entity struct {
	Model *schema.Model
	Alias string
}

// Name is the identity the entity is addressed by in SQL and in qualified keys.
func (e Entity) Name() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Model.Name
}
