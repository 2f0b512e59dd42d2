package query

import (
	"strings"

	"github.com/asaidimu/go-crud/core"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortKey is one column of an ORDER BY. Column may be a base column, a qualified
// `entity.column` or a flat join label such as `tier_name`.
type SortKey struct {
	Column    string
	Direction SortDirection
}

// ParseSort pairs columns with orders. No orders means ascending; a single order
// applies to every column; otherwise both lists must have the same length.
func ParseSort(columns []string, orders []string) ([]SortKey, error) {
	if len(columns) == 0 {
		if len(orders) > 0 {
			return nil, core.NewConfigError("sort_orders", "sort orders were provided without corresponding sort columns")
		}
		return nil, nil
	}
	if len(orders) > 1 && len(orders) != len(columns) {
		return nil, core.NewConfigError("sort_orders", "the length of sort_columns (%d) and sort_orders (%d) must match", len(columns), len(orders))
	}

	keys := make([]SortKey, len(columns))
	for i, column := range columns {
		direction := SortAsc
		switch {
		case len(orders) == 1:
			direction = SortDirection(strings.ToLower(orders[0]))
		case len(orders) > 1:
			direction = SortDirection(strings.ToLower(orders[i]))
		}
		if direction != SortAsc && direction != SortDesc {
			return nil, core.NewConfigError("sort_orders", "Invalid sort order: %s. Only 'asc' or 'desc' are allowed", direction)
		}
		keys[i] = SortKey{Column: column, Direction: direction}
	}
	return keys, nil
}
