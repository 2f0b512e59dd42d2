package query

import (
	"fmt"
	"strings"
)

// QueryBuilder provides a fluent API for assembling a Request. Each filter it adds
// is an ordinary keyword filter, so a built Request is indistinguishable from one
// written by hand.
type QueryBuilder struct {
	request Request
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build returns a copy of the constructed Request.
func (qb *QueryBuilder) Build() Request {
	return cloneRequest(qb.request)
}

// Filters returns the filters added so far.
func (qb *QueryBuilder) Filters() Filters {
	return append(Filters{}, qb.request.Filters...)
}

// Clone creates a copy of the builder. Changes to the clone do not affect the
// original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	return &QueryBuilder{request: cloneRequest(qb.request)}
}

// Reset clears everything, returning the builder to its initial state.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.request = Request{}
	return qb
}

// Filter appends a raw keyword filter such as `price__between`.
func (qb *QueryBuilder) Filter(key string, value any) *QueryBuilder {
	qb.request.Filters = append(qb.request.Filters, F(key, value))
	return qb
}

// Where begins a condition on column. Qualified `entity.column` names are allowed
// in joined reads.
func (qb *QueryBuilder) Where(column string) *ConditionBuilder[*QueryBuilder] {
	return &ConditionBuilder[*QueryBuilder]{add: func(op Operator, value any) *QueryBuilder {
		return qb.Filter(filterKey(column, op), value)
	}}
}

// AnyOf begins a `column__or` group: the column must satisfy at least one of the
// conditions added before End.
func (qb *QueryBuilder) AnyOf(column string) *ColumnGroupBuilder {
	return newColumnGroup(qb, column, LogicalOr)
}

// NoneOf begins a `column__not` group: the column must satisfy none of the
// conditions added before End.
func (qb *QueryBuilder) NoneOf(column string) *ColumnGroupBuilder {
	return newColumnGroup(qb, column, LogicalNot)
}

// Either begins a multi-column OR group (the `_or` key).
func (qb *QueryBuilder) Either() *FilterGroupBuilder {
	return &FilterGroupBuilder{parent: qb}
}

// OrderBy adds a sort column.
func (qb *QueryBuilder) OrderBy(column string, direction SortDirection) *QueryBuilder {
	qb.request.SortColumns = append(qb.request.SortColumns, column)
	qb.request.SortOrders = append(qb.request.SortOrders, string(direction))
	return qb
}

// OrderByAsc adds an ascending sort column.
func (qb *QueryBuilder) OrderByAsc(column string) *QueryBuilder {
	return qb.OrderBy(column, SortAsc)
}

// OrderByDesc adds a descending sort column.
func (qb *QueryBuilder) OrderByDesc(column string) *QueryBuilder {
	return qb.OrderBy(column, SortDesc)
}

// Limit sets the maximum number of records returned.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	qb.request.Pagination.Limit = &limit
	return qb
}

// Offset sets the number of records skipped.
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	qb.request.Pagination.Offset = &offset
	return qb
}

// Page switches to page mode.
func (qb *QueryBuilder) Page(page, itemsPerPage int) *QueryBuilder {
	qb.request.Pagination.Page = &page
	qb.request.Pagination.ItemsPerPage = &itemsPerPage
	return qb
}

// Unbounded removes the default limit.
func (qb *QueryBuilder) Unbounded() *QueryBuilder {
	qb.request.Pagination.Unbounded = true
	return qb
}

// Join appends a join step. Steps run in the order they are added.
func (qb *QueryBuilder) Join(spec JoinSpec) *QueryBuilder {
	qb.request.Joins = append(qb.request.Joins, spec)
	return qb
}

// Nest asks for nested rather than flat joined records.
func (qb *QueryBuilder) Nest() *QueryBuilder {
	qb.request.Nest = true
	return qb
}

// Columns sets the output allowlist.
func (qb *QueryBuilder) Columns(columns ...string) *QueryBuilder {
	qb.request.Columns = append(qb.request.Columns, columns...)
	return qb
}

// SkipTotalCount opts out of the count query.
func (qb *QueryBuilder) SkipTotalCount() *QueryBuilder {
	qb.request.SkipTotalCount = true
	return qb
}

// Validate checks what can be checked without a model: sort orders and the
// pagination window.
func (qb *QueryBuilder) Validate() error {
	if _, err := ParseSort(qb.request.SortColumns, qb.request.SortOrders); err != nil {
		return err
	}
	if _, err := qb.request.Pagination.Resolve(); err != nil {
		return err
	}
	return nil
}

// String returns a human-readable summary of the built request.
func (qb *QueryBuilder) String() string {
	var b strings.Builder
	b.WriteString("Request{")
	fmt.Fprintf(&b, "filters=%v", qb.request.Filters.Keys())
	if len(qb.request.SortColumns) > 0 {
		fmt.Fprintf(&b, " sort=%v/%v", qb.request.SortColumns, qb.request.SortOrders)
	}
	if len(qb.request.Joins) > 0 {
		names := make([]string, len(qb.request.Joins))
		for i, j := range qb.request.Joins {
			if j.Model != nil {
				names[i] = Entity{Model: j.Model, Alias: j.Alias}.Name()
			}
		}
		fmt.Fprintf(&b, " joins=%v", names)
	}
	if qb.request.Nest {
		b.WriteString(" nested")
	}
	b.WriteString("}")
	return b.String()
}

// ConditionBuilder adds one condition and hands control back to its parent P.
type ConditionBuilder[P any] struct {
	add func(op Operator, value any) P
}

// Op adds a condition with any registered operator, including custom ones.
func (cb *ConditionBuilder[P]) Op(op Operator, value any) P { return cb.add(op, value) }

func (cb *ConditionBuilder[P]) Eq(value any) P         { return cb.add(OpEq, value) }
func (cb *ConditionBuilder[P]) Ne(value any) P         { return cb.add(OpNe, value) }
func (cb *ConditionBuilder[P]) Gt(value any) P         { return cb.add(OpGt, value) }
func (cb *ConditionBuilder[P]) Gte(value any) P        { return cb.add(OpGte, value) }
func (cb *ConditionBuilder[P]) Lt(value any) P         { return cb.add(OpLt, value) }
func (cb *ConditionBuilder[P]) Lte(value any) P        { return cb.add(OpLte, value) }
func (cb *ConditionBuilder[P]) Like(pattern string) P  { return cb.add(OpLike, pattern) }
func (cb *ConditionBuilder[P]) ILike(pattern string) P { return cb.add(OpILike, pattern) }
func (cb *ConditionBuilder[P]) Match(text string) P    { return cb.add(OpMatch, text) }

func (cb *ConditionBuilder[P]) NotLike(pattern string) P  { return cb.add(OpNotLike, pattern) }
func (cb *ConditionBuilder[P]) NotILike(pattern string) P { return cb.add(OpNotILike, pattern) }
func (cb *ConditionBuilder[P]) StartsWith(prefix string) P {
	return cb.add(OpStartsWith, prefix)
}
func (cb *ConditionBuilder[P]) EndsWith(suffix string) P { return cb.add(OpEndsWith, suffix) }
func (cb *ConditionBuilder[P]) Contains(part string) P   { return cb.add(OpContains, part) }

// Is compares with IS TRUE / IS FALSE.
func (cb *ConditionBuilder[P]) Is(value bool) P    { return cb.add(OpIs, value) }
func (cb *ConditionBuilder[P]) IsNot(value bool) P { return cb.add(OpIsNot, value) }
func (cb *ConditionBuilder[P]) IsNull() P          { return cb.add(OpIs, nil) }
func (cb *ConditionBuilder[P]) IsNotNull() P       { return cb.add(OpIsNot, nil) }

func (cb *ConditionBuilder[P]) In(values ...any) P    { return cb.add(OpIn, values) }
func (cb *ConditionBuilder[P]) NotIn(values ...any) P { return cb.add(OpNotIn, values) }

// Between takes inclusive bounds.
func (cb *ConditionBuilder[P]) Between(low, high any) P {
	return cb.add(OpBetween, []any{low, high})
}

// ColumnGroupBuilder collects the operands of a `column__or` or `column__not`
// group. Its condition methods add operands; End attaches the group.
type ColumnGroupBuilder struct {
	ConditionBuilder[*ColumnGroupBuilder]
	parent   *QueryBuilder
	column   string
	logic    LogicalOperator
	operands Filters
}

func newColumnGroup(parent *QueryBuilder, column string, logic LogicalOperator) *ColumnGroupBuilder {
	g := &ColumnGroupBuilder{parent: parent, column: column, logic: logic}
	g.add = func(op Operator, value any) *ColumnGroupBuilder {
		g.operands = append(g.operands, F(string(op), value))
		return g
	}
	return g
}

// End finalizes the group and returns to the query builder. An empty group is
// still attached so the resolver can report it.
func (g *ColumnGroupBuilder) End() *QueryBuilder {
	return g.parent.Filter(g.column+Separator+string(g.logic), g.operands)
}

// FilterGroupBuilder collects the members of a multi-column OR group.
type FilterGroupBuilder struct {
	parent  *QueryBuilder
	members Filters
}

// Where adds a member condition to the group.
func (fg *FilterGroupBuilder) Where(column string) *ConditionBuilder[*FilterGroupBuilder] {
	return &ConditionBuilder[*FilterGroupBuilder]{add: func(op Operator, value any) *FilterGroupBuilder {
		fg.members = append(fg.members, F(filterKey(column, op), value))
		return fg
	}}
}

// End finalizes the group and returns to the query builder.
func (fg *FilterGroupBuilder) End() *QueryBuilder {
	return fg.parent.Filter(MultiFieldOrKey, fg.members)
}

func filterKey(column string, op Operator) string {
	if op == OpEq {
		return column
	}
	return column + Separator + string(op)
}

func cloneRequest(r Request) Request {
	out := r
	out.Filters = append(Filters(nil), r.Filters...)
	out.Joins = append([]JoinSpec(nil), r.Joins...)
	out.SortColumns = append([]string(nil), r.SortColumns...)
	out.SortOrders = append([]string(nil), r.SortOrders...)
	out.Columns = append([]string(nil), r.Columns...)
	if r.Join != nil {
		single := *r.Join
		out.Join = &single
	}
	out.Pagination = Pagination{
		Offset:       copyInt(r.Pagination.Offset),
		Limit:        copyInt(r.Pagination.Limit),
		Page:         copyInt(r.Pagination.Page),
		ItemsPerPage: copyInt(r.Pagination.ItemsPerPage),
		Unbounded:    r.Pagination.Unbounded,
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
