package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryBuilder(t *testing.T) {
	qb := NewQueryBuilder()
	assert.NotNil(t, qb)
	assert.Equal(t, Request{}, qb.Build())
}

func TestQueryBuilder_Where(t *testing.T) {
	tests := []struct {
		name     string
		buildFn  func(*QueryBuilder) *QueryBuilder
		expected Filters
	}{
		{"Eq keeps the bare column", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("name").Eq("x") }, Filters{F("name", "x")}},
		{"Ne", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("age").Ne(1) }, Filters{F("age__ne", 1)}},
		{"Gt and Lte", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("age").Gt(1).Where("age").Lte(9) }, Filters{F("age__gt", 1), F("age__lte", 9)}},
		{"In", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("age").In(1, 2) }, Filters{F("age__in", []any{1, 2})}},
		{"NotIn", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("age").NotIn(3) }, Filters{F("age__not_in", []any{3})}},
		{"Between", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("age").Between(5, 20) }, Filters{F("age__between", []any{5, 20})}},
		{"IsNull", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("email").IsNull() }, Filters{F("email__is", nil)}},
		{"IsNotNull", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("email").IsNotNull() }, Filters{F("email__is_not", nil)}},
		{"Is", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("active").Is(true) }, Filters{F("active__is", true)}},
		{"StartsWith", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("name").StartsWith("Jo") }, Filters{F("name__startswith", "Jo")}},
		{"ILike", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("name").ILike("jo%") }, Filters{F("name__ilike", "jo%")}},
		{"Custom operator", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("name").Op("len_gt", 3) }, Filters{F("name__len_gt", 3)}},
		{"Qualified column", func(qb *QueryBuilder) *QueryBuilder { return qb.Where("tier.name").Contains("old") }, Filters{F("tier.name__contains", "old")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := tt.buildFn(NewQueryBuilder())
			assert.Equal(t, tt.expected, qb.Build().Filters)
		})
	}
}

func TestQueryBuilder_Groups(t *testing.T) {
	req := NewQueryBuilder().
		Where("active").Eq(true).
		AnyOf("age").Lt(18).Gt(65).End().
		NoneOf("name").Eq("root").Like("sys%").End().
		Either().Where("name").StartsWith("A").Where("tier_id").Eq(2).End().
		Build()

	assert.Equal(t, Filters{
		F("active", true),
		F("age__or", Filters{F("lt", 18), F("gt", 65)}),
		F("name__not", Filters{F("eq", "root"), F("like", "sys%")}),
		F("_or", Filters{F("name__startswith", "A"), F("tier_id", 2)}),
	}, req.Filters)

	sql, args := compileFilters(t, PostgresDialect{}, req.Filters)
	assert.Equal(t,
		`("users"."active" = ? AND ("users"."age" < ? OR "users"."age" > ?) AND `+
			`(NOT ("users"."name" = ?) AND NOT ("users"."name" LIKE ?)) AND `+
			`("users"."name" LIKE ? OR "users"."tier_id" = ?))`,
		sql)
	assert.Equal(t, []any{true, 18, 65, "root", "sys%", "A%", 2}, args)
}

func TestQueryBuilder_SortPaginationAndShape(t *testing.T) {
	req := NewQueryBuilder().
		OrderByDesc("age").OrderByAsc("name").
		Offset(10).Limit(5).
		Join(JoinSpec{Model: tierModel, Prefix: "tier_"}).
		Nest().
		Columns("id", "tier").
		SkipTotalCount().
		Build()

	assert.Equal(t, []string{"age", "name"}, req.SortColumns)
	assert.Equal(t, []string{"desc", "asc"}, req.SortOrders)
	assert.Equal(t, 10, *req.Pagination.Offset)
	assert.Equal(t, 5, *req.Pagination.Limit)
	require.Len(t, req.Joins, 1)
	assert.True(t, req.Nest)
	assert.True(t, req.HasJoins())
	assert.Equal(t, []string{"id", "tier"}, req.Columns)
	assert.True(t, req.SkipTotalCount)

	page := NewQueryBuilder().Page(2, 25).Build()
	assert.Equal(t, 2, *page.Pagination.Page)
	assert.Equal(t, 25, *page.Pagination.ItemsPerPage)
	assert.True(t, NewQueryBuilder().Unbounded().Build().Pagination.Unbounded)
}

func TestQueryBuilder_CloneAndReset(t *testing.T) {
	qb := NewQueryBuilder().Where("name").Eq("a").Limit(10)
	clone := qb.Clone()
	clone.Where("age").Gt(1).Limit(20)

	assert.Len(t, qb.Filters(), 1)
	assert.Len(t, clone.Filters(), 2)
	assert.Equal(t, 10, *qb.Build().Pagination.Limit)
	assert.Equal(t, 20, *clone.Build().Pagination.Limit)

	built := qb.Build()
	built.Filters[0].Value = "changed"
	assert.Equal(t, "a", qb.Filters()[0].Value)

	qb.Reset()
	assert.Equal(t, Request{}, qb.Build())
}

func TestQueryBuilder_Validate(t *testing.T) {
	assert.NoError(t, NewQueryBuilder().OrderByAsc("name").Limit(3).Validate())
	assert.Error(t, NewQueryBuilder().Limit(3).Page(1, 2).Validate())
	assert.Error(t, NewQueryBuilder().OrderBy("name", "sideways").Validate())
}

func TestQueryBuilder_String(t *testing.T) {
	s := NewQueryBuilder().Where("name").Eq("a").OrderByDesc("id").Join(JoinSpec{Model: tierModel, Alias: "t"}).Nest().String()
	assert.Contains(t, s, "filters=[name]")
	assert.Contains(t, s, "sort=[id]/[desc]")
	assert.Contains(t, s, "joins=[t]")
	assert.Contains(t, s, "nested")
}
