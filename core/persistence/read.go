package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/core/shape"
	"go.uber.org/zap"
)

// Get returns the first record matching filters, or nil when nothing matches.
// With OneOrNone, more than one match is core.ErrMultipleResults.
func (c *CRUD) Get(ctx context.Context, filters query.Filters, opts GetOptions) (schema.Document, error) {
	return withEventEmission(c, OpGet, filters, opts, func() (schema.Document, error) {
		if err := shape.ValidateProjection(opts.Columns, c.model.ColumnNames()); err != nil {
			return nil, err
		}
		resolved, err := c.resolver.Resolve(c.base, filters)
		if err != nil {
			return nil, err
		}
		limit := 1
		if opts.OneOrNone {
			limit = 2
		}
		plan := &query.QueryPlan{
			Base:    c.base,
			Filters: resolved,
			Columns: opts.Columns,
			Window:  &query.Window{Limit: &limit},
		}
		rows, err := c.selectRows(ctx, plan)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		if len(rows) > 1 {
			total, err := c.count(ctx, plan)
			if err != nil {
				return nil, err
			}
			return nil, &core.MultipleResultsError{Operation: string(OpGet), Count: total}
		}
		return rows[0], nil
	})
}

// GetMulti returns a page of records. It is the only read that merges the
// configured default filters and resolves *query.Dependency values.
func (c *CRUD) GetMulti(ctx context.Context, opts GetMultiOptions) (*query.ResultEnvelope, error) {
	return withEventEmission(c, OpGetMulti, opts.Filters, opts, func() (*query.ResultEnvelope, error) {
		req := opts.request()
		filters, err := query.ResolveFilters(ctx, req.Filters.Merge(c.options.FilterConfig), query.NewDependencyScope())
		if err != nil {
			return nil, err
		}
		req.Filters = filters
		return c.read(ctx, req)
	})
}

// GetMultiByCursor returns the records after (asc) or before (desc) a cursor.
// NextCursor is set only when more records follow.
func (c *CRUD) GetMultiByCursor(ctx context.Context, opts CursorOptions) (*query.ResultEnvelope, error) {
	return withEventEmission(c, OpGetMultiByCursor, opts.Filters, opts, func() (*query.ResultEnvelope, error) {
		page := opts.Page
		if page.Limit < 0 {
			return nil, core.NewConfigError("limit", "limit must be non-negative")
		}
		column := page.Column
		if column == "" {
			column = c.model.PrimaryKeys()[0]
		}
		if !c.model.HasColumn(column) {
			return nil, core.NewConfigError("sort_column", "Invalid column name: %s", column)
		}
		var orders []string
		if page.Order != "" {
			orders = []string{page.Order}
		}
		sort, err := query.ParseSort([]string{column}, orders)
		if err != nil {
			return nil, err
		}
		if err := shape.ValidateProjection(opts.Columns, c.model.ColumnNames()); err != nil {
			return nil, err
		}
		resolved, err := c.resolver.Resolve(c.base, opts.Filters)
		if err != nil {
			return nil, err
		}

		hasMore := false
		if page.Limit == 0 {
			return &query.ResultEnvelope{Data: []schema.Document{}, HasMore: &hasMore}, nil
		}

		limit := page.Limit
		plan := &query.QueryPlan{
			Base:     c.base,
			Filters:  resolved,
			Sort:     sort,
			Window:   &query.Window{Limit: &limit},
			ExtraRow: true,
		}
		if !query.IsStartCursor(page.Cursor) {
			plan.Cursor = &query.CursorBoundary{Column: column, Value: page.Cursor, Direction: sort[0].Direction}
		}

		rows, err := c.selectRows(ctx, plan)
		if err != nil {
			return nil, err
		}
		if len(rows) > limit {
			hasMore = true
			rows = rows[:limit]
		}
		envelope := &query.ResultEnvelope{Data: shape.Project(rows, opts.Columns), HasMore: &hasMore}
		if hasMore {
			envelope.NextCursor = rows[len(rows)-1][column]
		}
		return envelope, nil
	})
}

// GetJoined returns the first shaped joined record, or nil.
func (c *CRUD) GetJoined(ctx context.Context, opts JoinedOptions) (schema.Document, error) {
	return withEventEmission(c, OpGetJoined, opts.Filters, opts, func() (schema.Document, error) {
		if !opts.HasJoins() {
			return nil, core.NewConfigError("joins", "a joined read requires a join or a joins list")
		}
		req := opts
		req.Pagination = query.Pagination{Limit: core.IntPtr(1)}
		req.SkipTotalCount = true
		envelope, err := c.read(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(envelope.Data) == 0 {
			return nil, nil
		}
		return envelope.Data[0], nil
	})
}

// GetMultiJoined returns a page of joined records, flat or nested.
func (c *CRUD) GetMultiJoined(ctx context.Context, opts JoinedOptions) (*query.ResultEnvelope, error) {
	return withEventEmission(c, OpGetMultiJoined, opts.Filters, opts, func() (*query.ResultEnvelope, error) {
		if !opts.HasJoins() {
			return nil, core.NewConfigError("joins", "a joined read requires a join or a joins list")
		}
		return c.read(ctx, opts)
	})
}

// Exists reports whether any record matches filters.
func (c *CRUD) Exists(ctx context.Context, filters query.Filters) (bool, error) {
	return withEventEmission(c, OpExists, filters, nil, func() (bool, error) {
		resolved, err := c.resolver.Resolve(c.base, filters)
		if err != nil {
			return false, err
		}
		limit := 1
		rows, err := c.selectRows(ctx, &query.QueryPlan{
			Base:    c.base,
			Filters: resolved,
			Columns: c.model.PrimaryKeys(),
			Window:  &query.Window{Limit: &limit},
		})
		if err != nil {
			return false, err
		}
		return len(rows) > 0, nil
	})
}

// Count returns the number of records matching filters. With joins, filters may
// target joined entities and each base record is counted once.
func (c *CRUD) Count(ctx context.Context, filters query.Filters, joins ...query.JoinSpec) (int64, error) {
	return withEventEmission(c, OpCount, filters, joins, func() (int64, error) {
		planned, err := c.planner.Plan(c.base, nil, joins)
		if err != nil {
			return 0, err
		}
		resolved, err := c.resolver.Resolve(c.base, filters, query.Scopes(planned)...)
		if err != nil {
			return 0, err
		}
		return c.count(ctx, &query.QueryPlan{Base: c.base, Filters: resolved, Joins: planned})
	})
}

// read runs a multi-row request: plan, fetch (in two phases when nesting lists),
// shape, project and count.
func (c *CRUD) read(ctx context.Context, req query.Request) (*query.ResultEnvelope, error) {
	joins, err := c.planner.Plan(c.base, req.Join, req.Joins)
	if err != nil {
		return nil, err
	}
	filters, err := c.resolver.Resolve(c.base, req.Filters, query.Scopes(joins)...)
	if err != nil {
		return nil, err
	}
	sort, err := query.ParseSort(req.SortColumns, req.SortOrders)
	if err != nil {
		return nil, err
	}
	window, err := req.Pagination.Resolve()
	if err != nil {
		return nil, err
	}
	known := shape.OutputColumns(c.model.ColumnNames(), joins, req.Nest)
	if err := shape.ValidateProjection(req.Columns, known); err != nil {
		return nil, err
	}

	plan := &query.QueryPlan{
		Base:     c.base,
		Filters:  filters,
		Joins:    joins,
		Sort:     sort,
		Window:   &window,
		ExtraRow: window.PageMode(),
	}
	if len(joins) == 0 {
		plan.Columns = req.Columns
	}

	var docs []schema.Document
	hasMore := false
	if req.Nest && plan.HasOneToMany() {
		docs, hasMore, err = c.readNested(ctx, plan)
	} else {
		docs, hasMore, err = c.readFlat(ctx, plan, req.Nest)
	}
	if err != nil {
		return nil, err
	}

	envelope := &query.ResultEnvelope{Data: shape.Project(docs, req.Columns)}
	if !req.SkipTotalCount {
		total, err := c.count(ctx, plan)
		if err != nil {
			return nil, err
		}
		envelope.TotalCount = &total
	}
	if window.PageMode() {
		envelope.Page = window.Page
		envelope.ItemsPerPage = window.ItemsPerPage
		envelope.HasMore = &hasMore
	}
	return envelope, nil
}

func (c *CRUD) readFlat(ctx context.Context, plan *query.QueryPlan, nest bool) ([]schema.Document, bool, error) {
	rows, err := c.selectRows(ctx, plan)
	if err != nil {
		return nil, false, err
	}
	rows, hasMore := trimExtra(rows, plan)
	switch {
	case len(plan.Joins) == 0:
		return rows, hasMore, nil
	case nest:
		return shape.Nest(rows, c.model, plan.Joins), hasMore, nil
	default:
		return shape.Flat(rows, plan.Joins), hasMore, nil
	}
}

// readNested pages base keys first, then fetches every joined row for those keys,
// so the window and has_more count base records rather than joined rows.
func (c *CRUD) readNested(ctx context.Context, plan *query.QueryPlan) ([]schema.Document, bool, error) {
	stmt, err := c.compiler.KeyPage(plan)
	if err != nil {
		return nil, false, err
	}
	keyRows, err := c.ec.Query(ctx, stmt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to page %s keys: %w", c.model.Name, err)
	}

	order := make(map[string]int, len(keyRows))
	keys := make([][]any, 0, len(keyRows))
	for _, row := range keyRows {
		key, _ := c.model.KeyOf(row)
		order[shape.KeyString(key)] = len(keys)
		keys = append(keys, key)
	}
	hasMore := false
	if plan.ExtraRow && plan.Window != nil && plan.Window.Limit != nil && len(keys) > *plan.Window.Limit {
		hasMore = true
		keys = keys[:*plan.Window.Limit]
	}
	if len(keys) == 0 {
		return []schema.Document{}, hasMore, nil
	}

	dataPlan := *plan
	dataPlan.Window = nil
	dataPlan.ExtraRow = false
	dataPlan.Keys = keys
	rows, err := c.selectRows(ctx, &dataPlan)
	if err != nil {
		return nil, false, err
	}

	docs := shape.Nest(rows, c.model, plan.Joins)
	ordered := make([]schema.Document, len(keys))
	for _, doc := range docs {
		key, _ := c.model.KeyOf(doc)
		if i, ok := order[shape.KeyString(key)]; ok && i < len(ordered) {
			ordered[i] = doc
		}
	}
	out := ordered[:0]
	for _, doc := range ordered {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, hasMore, nil
}

func trimExtra(rows []schema.Document, plan *query.QueryPlan) ([]schema.Document, bool) {
	if !plan.ExtraRow || plan.Window == nil || plan.Window.Limit == nil {
		return rows, false
	}
	if len(rows) > *plan.Window.Limit {
		return rows[:*plan.Window.Limit], true
	}
	return rows, false
}

func (c *CRUD) selectRows(ctx context.Context, plan *query.QueryPlan) ([]schema.Document, error) {
	stmt, err := c.compiler.Select(plan)
	if err != nil {
		return nil, err
	}
	rows, err := c.ec.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.model.Name, err)
	}
	if rows == nil {
		rows = []schema.Document{}
	}
	return rows, nil
}

func (c *CRUD) count(ctx context.Context, plan *query.QueryPlan) (int64, error) {
	stmt, err := c.compiler.Count(plan)
	if err != nil {
		return 0, err
	}
	rows, err := c.ec.Query(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.model.Name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	total, ok := core.ToFloat64(rows[0]["total"])
	if !ok {
		c.logger.Warn("Count returned a non-numeric value", zap.Any("total", rows[0]["total"]))
		return 0, fmt.Errorf("count of %s returned %T", c.model.Name, rows[0]["total"])
	}
	return int64(total), nil
}
