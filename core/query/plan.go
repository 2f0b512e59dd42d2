package query

import (
	"github.com/asaidimu/go-crud/core/schema"
)

// Statement is a compiled SQL statement. Types maps result labels to declared
// column types so the execution context can coerce driver values.
type Statement struct {
	SQL   string
	Args  []any
	Types map[string]schema.FieldType
}

// CursorBoundary restricts a read to rows strictly after (asc) or before (desc)
// Value in Column.
type CursorBoundary struct {
	Column    string
	Value     any
	Direction SortDirection
}

// QueryPlan is the composed, not yet executed representation of a read.
type QueryPlan struct {
	Base    Entity
	Filters []QueryFilter
	Joins   []PlannedJoin
	Sort    []SortKey
	Window  *Window
	Cursor  *CursorBoundary
	// Columns restricts the selected base columns; empty selects all of them.
	Columns []string
	// Keys, when non-nil, restricts the read to these base primary key tuples.
	Keys [][]any
	// ExtraRow fetches one row beyond the window limit to detect more data.
	ExtraRow bool
}

// HasOneToMany reports whether any join nests as a list.
func (p *QueryPlan) HasOneToMany() bool {
	for _, j := range p.Joins {
		if j.Relationship() == OneToMany {
			return true
		}
	}
	return false
}

// BaseColumns returns the selected base columns.
func (p *QueryPlan) BaseColumns() []string {
	if len(p.Columns) > 0 {
		return p.Columns
	}
	return p.Base.Model.ColumnNames()
}

// Request is the caller facing description of a read: keyword filters, joins,
// sorting, pagination and projection.
type Request struct {
	Filters     Filters
	Join        *JoinSpec
	Joins       []JoinSpec
	Nest        bool
	SortColumns []string
	SortOrders  []string
	Pagination  Pagination
	// Columns is an allowlist of output columns; empty returns everything.
	Columns []string
	// SkipTotalCount opts out of the separate count query.
	SkipTotalCount bool
}

// HasJoins reports whether the request joins anything.
func (r Request) HasJoins() bool {
	return r.Join != nil || len(r.Joins) > 0
}

// ResultEnvelope is the result of a multi-row read. Optional members are nil
// when the read mode does not produce them.
type ResultEnvelope struct {
	Data         []schema.Document `json:"data"`
	TotalCount   *int64            `json:"total_count,omitempty"`
	HasMore      *bool             `json:"has_more,omitempty"`
	Page         *int              `json:"page,omitempty"`
	ItemsPerPage *int              `json:"items_per_page,omitempty"`
	NextCursor   any               `json:"next_cursor,omitempty"`
}
