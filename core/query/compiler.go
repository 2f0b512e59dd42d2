package query

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/schema"
	"go.uber.org/zap"
)

const totalLabel = "total"

var joinKeywords = map[JoinType]string{
	InnerJoin: "INNER JOIN",
	LeftJoin:  "LEFT JOIN",
	RightJoin: "RIGHT JOIN",
	FullJoin:  "FULL OUTER JOIN",
}

// Compiler renders query plans and writes into SQL for one dialect.
type Compiler struct {
	dialect  Dialect
	resolver *Resolver
	logger   *zap.Logger
}

// NewCompiler creates a compiler. A nil resolver uses the default registry.
func NewCompiler(d Dialect, resolver *Resolver, logger *zap.Logger) *Compiler {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{dialect: d, resolver: resolver, logger: logger}
}

// Dialect returns the dialect statements are rendered for.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

func (c *Compiler) table(e Entity) string {
	if e.Alias != "" {
		return c.dialect.Quote(e.Model.Name) + " AS " + c.dialect.Quote(e.Alias)
	}
	return c.dialect.Quote(e.Model.Name)
}

func (c *Compiler) col(entity, column string) string {
	return QualifiedColumn(c.dialect, entity, column)
}

// from renders FROM, JOIN and WHERE of a plan on an empty select.
func (c *Compiler) from(plan *QueryPlan) (sq.SelectBuilder, error) {
	sb := sq.Select().From(c.table(plan.Base))

	for _, j := range plan.Joins {
		on := make(sq.And, 0, len(j.On)+1)
		for _, cond := range j.On {
			from := cond.From
			if from == "" {
				from = plan.Base.Name()
			}
			on = append(on, sq.Expr(c.col(from, cond.Column)+" = "+c.col(j.Entity.Name(), cond.To)))
		}
		extra, err := c.resolver.Compile(j.Filters, c.dialect)
		if err != nil {
			return sb, err
		}
		if extra != nil {
			on = append(on, extra)
		}
		onSQL, onArgs, err := on.ToSql()
		if err != nil {
			return sb, fmt.Errorf("failed to render join condition for %s: %w", j.Entity.Name(), err)
		}
		keyword, ok := joinKeywords[j.Spec.Type]
		if !ok {
			keyword = joinKeywords[LeftJoin]
		}
		sb = sb.JoinClause(keyword+" "+c.table(j.Entity)+" ON "+onSQL, onArgs...)
	}

	where, err := c.resolver.Compile(plan.Filters, c.dialect)
	if err != nil {
		return sb, err
	}
	if where != nil {
		sb = sb.Where(where)
	}

	if plan.Keys != nil {
		sb = sb.Where(c.keyRestriction(plan.Base, plan.Keys))
	}

	if plan.Cursor != nil {
		column := c.col(plan.Base.Name(), plan.Cursor.Column)
		if plan.Cursor.Direction == SortDesc {
			sb = sb.Where(sq.Lt{column: plan.Cursor.Value})
		} else {
			sb = sb.Where(sq.Gt{column: plan.Cursor.Value})
		}
	}
	return sb, nil
}

func (c *Compiler) keyRestriction(base Entity, keys [][]any) sq.Sqlizer {
	pks := base.Model.PrimaryKeys()
	if len(keys) == 0 {
		return sq.Expr("1=0")
	}
	if len(pks) == 1 {
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k[0]
		}
		return sq.Eq{c.col(base.Name(), pks[0]): values}
	}
	or := make(sq.Or, len(keys))
	for i, k := range keys {
		eq := make(sq.And, len(pks))
		for n, pk := range pks {
			eq[n] = sq.Eq{c.col(base.Name(), pk): k[n]}
		}
		or[i] = eq
	}
	return or
}

func (c *Compiler) orderBy(plan *QueryPlan) ([]string, error) {
	clauses := make([]string, 0, len(plan.Sort))
	for _, key := range plan.Sort {
		expr, err := c.sortExpr(plan, key.Column)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, expr+" "+strings.ToUpper(string(key.Direction)))
	}
	return clauses, nil
}

func (c *Compiler) sortExpr(plan *QueryPlan, key string) (string, error) {
	if dot := strings.Index(key, "."); dot > 0 {
		qualifier, column := key[:dot], key[dot+1:]
		entities := append([]Entity{plan.Base}, Scopes(plan.Joins)...)
		for _, e := range entities {
			if e.Name() == qualifier && e.Model.HasColumn(column) {
				return c.col(e.Name(), column), nil
			}
		}
		return "", core.NewConfigError("sort_columns", "Invalid column name: %s", key)
	}
	if plan.Base.Model.HasColumn(key) {
		return c.col(plan.Base.Name(), key), nil
	}
	for _, j := range plan.Joins {
		for _, column := range j.Entity.Model.ColumnNames() {
			if j.FlatKey(column) == key {
				return c.col(j.Entity.Name(), column), nil
			}
		}
	}
	return "", core.NewConfigError("sort_columns", "Invalid column name: %s", key)
}

func (c *Compiler) window(sb sq.SelectBuilder, plan *QueryPlan) sq.SelectBuilder {
	if plan.Window == nil {
		return sb
	}
	if plan.Window.Limit != nil {
		limit := *plan.Window.Limit
		if plan.ExtraRow {
			limit++
		}
		sb = sb.Limit(uint64(limit))
	}
	if plan.Window.Offset > 0 {
		sb = sb.Offset(uint64(plan.Window.Offset))
	}
	return sb
}

// Select renders the full read of a plan. Base columns are labelled with their
// names, joined columns with PlannedJoin.Label.
func (c *Compiler) Select(plan *QueryPlan) (Statement, error) {
	sb, err := c.from(plan)
	if err != nil {
		return Statement{}, err
	}

	types := make(map[string]schema.FieldType)
	columns := make([]string, 0)
	for _, name := range plan.BaseColumns() {
		col, ok := plan.Base.Model.Column(name)
		if !ok {
			return Statement{}, core.NewConfigError("columns", "Invalid column name: %s", name)
		}
		columns = append(columns, c.col(plan.Base.Name(), name)+" AS "+c.dialect.Quote(name))
		types[name] = col.Type
	}
	for _, j := range plan.Joins {
		for _, name := range j.Columns {
			col, _ := j.Entity.Model.Column(name)
			label := j.Label(name)
			columns = append(columns, c.col(j.Entity.Name(), name)+" AS "+c.dialect.Quote(label))
			types[label] = col.Type
		}
	}
	sb = sb.Columns(columns...)

	order, err := c.orderBy(plan)
	if err != nil {
		return Statement{}, err
	}
	if len(order) > 0 {
		sb = sb.OrderBy(order...)
	}
	sb = c.window(sb, plan)

	return c.finish("SELECT", sb, types)
}

// Count renders a count of the plan's matching base rows, ignoring sort and window.
// With joins it counts distinct base primary keys.
func (c *Compiler) Count(plan *QueryPlan) (Statement, error) {
	countPlan := *plan
	countPlan.Cursor = nil
	sb, err := c.from(&countPlan)
	if err != nil {
		return Statement{}, err
	}

	types := map[string]schema.FieldType{totalLabel: schema.FieldTypeInteger}
	countColumn := "COUNT(*) AS " + c.dialect.Quote(totalLabel)
	if len(plan.Joins) == 0 {
		return c.finish("COUNT", sb.Columns(countColumn), types)
	}

	pks := plan.Base.Model.PrimaryKeys()
	keyColumns := make([]string, len(pks))
	for i, pk := range pks {
		keyColumns[i] = c.col(plan.Base.Name(), pk) + " AS " + c.dialect.Quote(pk)
	}
	inner := sb.Distinct().Columns(keyColumns...)
	outer := sq.Select(countColumn).FromSelect(inner, c.dialect.Quote("counted"))
	return c.finish("COUNT", outer, types)
}

// KeyPage renders the first phase of a nested one-to-many read: the ordered,
// windowed primary keys of the base rows, one row per base record. Sort columns of
// joined entities are aggregated per record, MIN for ascending and MAX for
// descending, and the base key breaks ties.
func (c *Compiler) KeyPage(plan *QueryPlan) (Statement, error) {
	sb, err := c.from(plan)
	if err != nil {
		return Statement{}, err
	}
	types := make(map[string]schema.FieldType)
	pks := plan.Base.Model.PrimaryKeys()
	columns := make([]string, 0, len(pks)+len(plan.Sort))
	group := make([]string, 0, len(pks))
	for _, pk := range pks {
		col, _ := plan.Base.Model.Column(pk)
		expr := c.col(plan.Base.Name(), pk)
		columns = append(columns, expr+" AS "+c.dialect.Quote(pk))
		group = append(group, expr)
		types[pk] = col.Type
	}

	order := make([]string, 0, len(plan.Sort)+len(group))
	for i, key := range plan.Sort {
		expr, err := c.sortExpr(plan, key.Column)
		if err != nil {
			return Statement{}, err
		}
		aggregate := "MIN(" + expr + ")"
		if key.Direction == SortDesc {
			aggregate = "MAX(" + expr + ")"
		}
		columns = append(columns, aggregate+" AS "+c.dialect.Quote(fmt.Sprintf("__s%d", i)))
		order = append(order, aggregate+" "+strings.ToUpper(string(key.Direction)))
	}
	for _, expr := range group {
		order = append(order, expr+" ASC")
	}

	sb = sb.Columns(columns...).GroupBy(group...).OrderBy(order...)
	sb = c.window(sb, plan)
	return c.finish("KEYS", sb, types)
}

// InsertSpec describes a (multi-row) insert.
type InsertSpec struct {
	Model     *schema.Model
	Rows      []map[string]any
	Returning []string
	Upsert    *UpsertSpec
}

// Insert renders INSERT, optionally with the dialect's upsert clause and RETURNING.
// Every row must carry the same columns.
func (c *Compiler) Insert(spec InsertSpec) (Statement, error) {
	if len(spec.Rows) == 0 {
		return Statement{}, fmt.Errorf("insert into %s requires at least one row", spec.Model.Name)
	}

	columns := make([]string, 0, len(spec.Rows[0]))
	for _, name := range spec.Model.ColumnNames() {
		if _, ok := spec.Rows[0][name]; ok {
			columns = append(columns, name)
		}
	}
	if len(columns) != len(spec.Rows[0]) {
		return Statement{}, core.NewConfigError("payload", "payload has columns not defined on %s", spec.Model.Name)
	}

	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = c.dialect.Quote(name)
	}
	ib := sq.Insert(c.dialect.Quote(spec.Model.Name)).Columns(quoted...)

	for n, row := range spec.Rows {
		if len(row) != len(columns) {
			return Statement{}, core.NewConfigError("instances", "row %d does not carry the same columns as the first row", n)
		}
		values := make([]any, len(columns))
		for i, name := range columns {
			v, ok := row[name]
			if !ok {
				return Statement{}, core.NewConfigError("instances", "row %d is missing column %s", n, name)
			}
			col, _ := spec.Model.Column(name)
			prepared, err := c.dialect.PrepareValue(col.Type, v)
			if err != nil {
				return Statement{}, err
			}
			values[i] = prepared
		}
		ib = ib.Values(values...)
	}

	var suffix []string
	var suffixArgs []any
	if spec.Upsert != nil {
		upsert, err := c.dialect.UpsertSuffix(*spec.Upsert)
		if err != nil {
			return Statement{}, err
		}
		sql, args, err := upsert.ToSql()
		if err != nil {
			return Statement{}, err
		}
		suffix = append(suffix, sql)
		suffixArgs = append(suffixArgs, args...)
	}
	types := c.returning(spec.Model, spec.Returning, &suffix)
	if len(suffix) > 0 {
		ib = ib.Suffix(strings.Join(suffix, " "), suffixArgs...)
	}

	sql, args, err := ib.PlaceholderFormat(c.dialect.Placeholder()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to render INSERT: %w", err)
	}
	c.logger.Debug("Compiled INSERT", zap.String("sql", sql), zap.Any("params", args))
	return Statement{SQL: sql, Args: args, Types: types}, nil
}

// returning appends a RETURNING clause when the dialect supports it and returns
// the result types.
func (c *Compiler) returning(model *schema.Model, columns []string, suffix *[]string) map[string]schema.FieldType {
	if len(columns) == 0 || !c.dialect.SupportsReturning() {
		return nil
	}
	types := make(map[string]schema.FieldType, len(columns))
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = c.dialect.Quote(name)
		if col, ok := model.Column(name); ok {
			types[name] = col.Type
		}
	}
	*suffix = append(*suffix, "RETURNING "+strings.Join(quoted, ", "))
	return types
}

// Update renders UPDATE of values on rows matching filters. Columns are set in
// sorted order so statements are stable.
func (c *Compiler) Update(model *schema.Model, values map[string]any, filters []QueryFilter, returning []string) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, core.NewConfigError("payload", "update requires at least one column")
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	ub := sq.Update(c.dialect.Quote(model.Name))
	for _, name := range names {
		col, ok := model.Column(name)
		if !ok {
			return Statement{}, core.NewConfigError("payload", "Extra fields provided: %s", name)
		}
		prepared, err := c.dialect.PrepareValue(col.Type, values[name])
		if err != nil {
			return Statement{}, err
		}
		ub = ub.Set(c.dialect.Quote(name), prepared)
	}

	where, err := c.resolver.Compile(filters, c.dialect)
	if err != nil {
		return Statement{}, err
	}
	if where != nil {
		ub = ub.Where(where)
	}

	var suffix []string
	types := c.returning(model, returning, &suffix)
	if len(suffix) > 0 {
		ub = ub.Suffix(strings.Join(suffix, " "))
	}

	sql, args, err := ub.PlaceholderFormat(c.dialect.Placeholder()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to render UPDATE: %w", err)
	}
	c.logger.Debug("Compiled UPDATE", zap.String("sql", sql), zap.Any("params", args))
	return Statement{SQL: sql, Args: args, Types: types}, nil
}

// Delete renders DELETE of rows matching filters. Deleting without filters is
// refused unless unsafe is set.
func (c *Compiler) Delete(model *schema.Model, filters []QueryFilter, unsafe bool) (Statement, error) {
	if len(filters) == 0 && !unsafe {
		return Statement{}, core.NewConfigError("filters", "refusing to delete every row of %s without AllowMultiple", model.Name)
	}
	db := sq.Delete(c.dialect.Quote(model.Name))
	where, err := c.resolver.Compile(filters, c.dialect)
	if err != nil {
		return Statement{}, err
	}
	if where != nil {
		db = db.Where(where)
	}
	sql, args, err := db.PlaceholderFormat(c.dialect.Placeholder()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to render DELETE: %w", err)
	}
	c.logger.Debug("Compiled DELETE", zap.String("sql", sql), zap.Any("params", args))
	return Statement{SQL: sql, Args: args}, nil
}

func (c *Compiler) finish(kind string, sb sq.SelectBuilder, types map[string]schema.FieldType) (Statement, error) {
	sql, args, err := sb.PlaceholderFormat(c.dialect.Placeholder()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to render %s: %w", kind, err)
	}
	c.logger.Debug("Compiled "+kind, zap.String("sql", sql), zap.Any("params", args))
	return Statement{SQL: sql, Args: args, Types: types}, nil
}
