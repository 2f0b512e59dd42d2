package query

import (
	"testing"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	itemModel = schema.MustModel("item",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString},
	)
	authorModel = schema.MustModel("author",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "name", Type: schema.FieldTypeString},
	)
	bookModel = schema.MustModel("book",
		schema.Column{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true},
		schema.Column{Name: "author_id", Type: schema.FieldTypeInteger, References: &schema.ForeignKey{Model: "author", Column: "id"}},
		schema.Column{Name: "title", Type: schema.FieldTypeString},
	)
	items = Entity{Model: itemModel}
)

func resolved(t *testing.T, base Entity, filters Filters, joins ...PlannedJoin) []QueryFilter {
	t.Helper()
	out, err := NewResolver(nil).Resolve(base, filters, Scopes(joins)...)
	require.NoError(t, err)
	return out
}

func planJoins(t *testing.T, base Entity, joins ...JoinSpec) []PlannedJoin {
	t.Helper()
	planned, err := NewJoinPlanner(nil).Plan(base, nil, joins)
	require.NoError(t, err)
	return planned
}

func TestCompileSelectWindow(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	stmt, err := c.Select(&QueryPlan{Base: items, Window: &Window{Offset: 20, Limit: core.IntPtr(10)}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "item"."id" AS "id", "item"."name" AS "name" FROM "item" LIMIT 10 OFFSET 20`, stmt.SQL)
	assert.Empty(t, stmt.Args)
	assert.Equal(t, map[string]schema.FieldType{"id": schema.FieldTypeInteger, "name": schema.FieldTypeString}, stmt.Types)

	stmt, err = c.Select(&QueryPlan{Base: items, Window: &Window{}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "item"."id" AS "id", "item"."name" AS "name" FROM "item"`, stmt.SQL)
}

func TestCompileSelectFiltersAndSort(t *testing.T) {
	c := NewCompiler(MySQLDialect{}, nil, nil)
	sort, err := ParseSort([]string{"id"}, []string{"desc"})
	require.NoError(t, err)
	stmt, err := c.Select(&QueryPlan{
		Base:     items,
		Filters:  resolved(t, items, Filters{F("name", "x")}),
		Sort:     sort,
		Window:   &Window{Limit: core.IntPtr(5)},
		ExtraRow: true,
		Columns:  []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `item`.`id` AS `id` FROM `item` WHERE (`item`.`name` = ?) ORDER BY `item`.`id` DESC LIMIT 6", stmt.SQL)
	assert.Equal(t, []any{"x"}, stmt.Args)
}

func TestCompileSelectInvalidSort(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	_, err := c.Select(&QueryPlan{Base: items, Sort: []SortKey{{Column: "nope", Direction: SortAsc}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "Invalid column name: nope")

	_, err = c.Select(&QueryPlan{Base: items, Columns: []string{"nope"}})
	assert.Error(t, err)
}

func TestCompileSelectJoin(t *testing.T) {
	books := Entity{Model: bookModel}
	joins := planJoins(t, books, JoinSpec{
		Model:   authorModel,
		Prefix:  "author_",
		Filters: Filters{F("name__ne", "anon")},
	})
	sort, err := ParseSort([]string{"author_name", "author.id"}, nil)
	require.NoError(t, err)

	c := NewCompiler(PostgresDialect{}, nil, nil)
	stmt, err := c.Select(&QueryPlan{
		Base:    books,
		Joins:   joins,
		Filters: resolved(t, books, Filters{F("title__contains", "dune"), F("author.name__startswith", "F")}, joins...),
		Sort:    sort,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "book"."id" AS "id", "book"."author_id" AS "author_id", "book"."title" AS "title", `+
			`"author"."id" AS "__j0_id", "author"."name" AS "__j0_name" `+
			`FROM "book" LEFT JOIN "author" ON ("book"."author_id" = "author"."id" AND ("author"."name" <> $1)) `+
			`WHERE ("book"."title" LIKE $2 AND "author"."name" LIKE $3) `+
			`ORDER BY "author"."name" ASC, "author"."id" ASC`,
		stmt.SQL)
	assert.Equal(t, []any{"anon", "%dune%", "F%"}, stmt.Args)
	assert.Equal(t, schema.FieldTypeString, stmt.Types["__j0_name"])
}

func TestCompileJoinKeywords(t *testing.T) {
	books := Entity{Model: bookModel}
	c := NewCompiler(PostgresDialect{}, nil, nil)
	for joinType, keyword := range joinKeywords {
		joins := planJoins(t, books, JoinSpec{Model: authorModel, Type: joinType})
		stmt, err := c.Select(&QueryPlan{Base: books, Joins: joins})
		require.NoError(t, err)
		assert.Contains(t, stmt.SQL, `FROM "book" `+keyword+` "author" ON`)
	}

	joins := planJoins(t, books, JoinSpec{Model: authorModel, Alias: "a"})
	stmt, err := c.Select(&QueryPlan{Base: books, Joins: joins})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `LEFT JOIN "author" AS "a" ON ("book"."author_id" = "a"."id")`)
}

func TestCompileCount(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	stmt, err := c.Count(&QueryPlan{
		Base:    items,
		Filters: resolved(t, items, Filters{F("name", "x")}),
		Sort:    []SortKey{{Column: "id", Direction: SortAsc}},
		Window:  &Window{Limit: core.IntPtr(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "total" FROM "item" WHERE ("item"."name" = $1)`, stmt.SQL)
	assert.Equal(t, schema.FieldTypeInteger, stmt.Types["total"])

	authors := Entity{Model: authorModel}
	joins := planJoins(t, authors, JoinSpec{Model: bookModel, Relationship: OneToMany})
	stmt, err = c.Count(&QueryPlan{Base: authors, Joins: joins})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) AS "total" FROM (SELECT DISTINCT "author"."id" AS "id" FROM "author" `+
			`LEFT JOIN "book" ON ("author"."id" = "book"."author_id")) AS "counted"`,
		stmt.SQL)
}

func TestCompileCursor(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	stmt, err := c.Select(&QueryPlan{
		Base:     items,
		Cursor:   &CursorBoundary{Column: "id", Value: 10, Direction: SortDesc},
		Sort:     []SortKey{{Column: "id", Direction: SortDesc}},
		Window:   &Window{Limit: core.IntPtr(3)},
		ExtraRow: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "item"."id" AS "id", "item"."name" AS "name" FROM "item" WHERE "item"."id" < $1 ORDER BY "item"."id" DESC LIMIT 4`, stmt.SQL)
	assert.Equal(t, []any{10}, stmt.Args)
}

func TestCompileKeyPageAndKeys(t *testing.T) {
	authors := Entity{Model: authorModel}
	joins := planJoins(t, authors, JoinSpec{Model: bookModel, Relationship: OneToMany})
	c := NewCompiler(PostgresDialect{}, nil, nil)

	stmt, err := c.KeyPage(&QueryPlan{
		Base:   authors,
		Joins:  joins,
		Sort:   []SortKey{{Column: "name", Direction: SortAsc}},
		Window: &Window{Limit: core.IntPtr(2)},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "author"."id" AS "id", MIN("author"."name") AS "__s0" FROM "author" `+
			`LEFT JOIN "book" ON ("author"."id" = "book"."author_id") GROUP BY "author"."id" `+
			`ORDER BY MIN("author"."name") ASC, "author"."id" ASC LIMIT 2`,
		stmt.SQL)

	// A descending child sort orders each author by its largest value.
	stmt, err = c.KeyPage(&QueryPlan{
		Base:     authors,
		Joins:    joins,
		Sort:     []SortKey{{Column: "title", Direction: SortDesc}},
		Window:   &Window{Limit: core.IntPtr(2), Offset: 2},
		ExtraRow: true,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "author"."id" AS "id", MAX("book"."title") AS "__s0" FROM "author" `+
			`LEFT JOIN "book" ON ("author"."id" = "book"."author_id") GROUP BY "author"."id" `+
			`ORDER BY MAX("book"."title") DESC, "author"."id" ASC LIMIT 3 OFFSET 2`,
		stmt.SQL)

	stmt, err = c.KeyPage(&QueryPlan{Base: authors, Joins: joins, Window: &Window{Limit: core.IntPtr(2)}})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `GROUP BY "author"."id" ORDER BY "author"."id" ASC LIMIT 2`)

	stmt, err = c.Select(&QueryPlan{Base: authors, Joins: joins, Keys: [][]any{{1}, {2}}})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `WHERE "author"."id" IN ($1,$2)`)
	assert.Equal(t, []any{1, 2}, stmt.Args)

	stmt, err = c.Select(&QueryPlan{Base: authors, Keys: [][]any{}})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `WHERE 1=0`)

	link := Entity{Model: linkModel}
	stmt, err = c.Select(&QueryPlan{Base: link, Keys: [][]any{{1, 2}, {3, 4}}})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL,
		`WHERE (("project_participant"."project_id" = $1 AND "project_participant"."participant_id" = $2) OR `+
			`("project_participant"."project_id" = $3 AND "project_participant"."participant_id" = $4))`)
}

func TestCompileInsert(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	stmt, err := c.Insert(InsertSpec{
		Model:     itemModel,
		Rows:      []map[string]any{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}},
		Returning: []string{"id", "name"},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "item" ("id","name") VALUES ($1,$2),($3,$4) RETURNING "id", "name"`, stmt.SQL)
	assert.Equal(t, []any{1, "a", 2, "b"}, stmt.Args)

	stmt, err = c.Insert(InsertSpec{
		Model:  itemModel,
		Rows:   []map[string]any{{"id": 1, "name": "a"}},
		Upsert: &UpsertSpec{Table: "item", ConflictColumns: []string{"id"}, UpdateColumns: []string{"name"}, Override: map[string]any{"name": "z"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "item" ("id","name") VALUES ($1,$2) ON CONFLICT ("id") DO UPDATE SET "name" = $3`, stmt.SQL)
	assert.Equal(t, []any{1, "a", "z"}, stmt.Args)

	stmt, err = c.Insert(InsertSpec{
		Model:  itemModel,
		Rows:   []map[string]any{{"id": 1, "name": "a"}},
		Upsert: &UpsertSpec{Table: "item", ConflictColumns: []string{"id"}, UpdateColumns: []string{"name"}},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `DO UPDATE SET "name" = EXCLUDED."name"`)

	mysql := NewCompiler(MySQLDialect{}, nil, nil)
	stmt, err = mysql.Insert(InsertSpec{
		Model:     itemModel,
		Rows:      []map[string]any{{"id": 1, "name": "a"}},
		Returning: []string{"id"},
		Upsert:    &UpsertSpec{Table: "item", ConflictColumns: []string{"id"}, UpdateColumns: []string{"name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `item` (`id`,`name`) VALUES (?,?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)", stmt.SQL)
	assert.Nil(t, stmt.Types)

	_, err = c.Insert(InsertSpec{Model: itemModel})
	assert.Error(t, err)
	_, err = c.Insert(InsertSpec{Model: itemModel, Rows: []map[string]any{{"id": 1, "bogus": 2}}})
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = c.Insert(InsertSpec{Model: itemModel, Rows: []map[string]any{{"id": 1, "name": "a"}, {"id": 2}}})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestCompileUpdateAndDelete(t *testing.T) {
	c := NewCompiler(PostgresDialect{}, nil, nil)
	filters := resolved(t, items, Filters{F("id", 1)})

	stmt, err := c.Update(itemModel, map[string]any{"name": "x"}, filters, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "item" SET "name" = $1 WHERE ("item"."id" = $2) RETURNING "id"`, stmt.SQL)
	assert.Equal(t, []any{"x", 1}, stmt.Args)

	_, err = c.Update(itemModel, map[string]any{"bogus": 1}, filters, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Extra fields provided: bogus")
	_, err = c.Update(itemModel, map[string]any{}, filters, nil)
	assert.Error(t, err)

	stmt, err = c.Delete(itemModel, filters, false)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "item" WHERE ("item"."id" = $1)`, stmt.SQL)

	_, err = c.Delete(itemModel, nil, false)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	stmt, err = c.Delete(itemModel, nil, true)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "item"`, stmt.SQL)
}

func TestPrepareJSONValues(t *testing.T) {
	v, err := PrepareJSON(schema.FieldTypeObject, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = PrepareJSON(schema.FieldTypeArray, `[1]`)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, v)

	v, err = PrepareJSON(schema.FieldTypeString, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}
