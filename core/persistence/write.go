package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/core/shape"
	"go.uber.org/zap"
)

// Create validates and inserts one record and returns it as stored.
func (c *CRUD) Create(ctx context.Context, payload map[string]any, opts CreateOptions) (schema.Document, error) {
	return withEventEmission(c, OpCreate, payload, nil, func() (schema.Document, error) {
		if err := schema.NewValidator(c.model).Check(payload, schema.ModeCreate); err != nil {
			return nil, err
		}
		row := c.withColumnDefaults(payload)

		var created schema.Document
		err := c.write(ctx, opts.NoCommit, func() error {
			doc, err := c.insert(ctx, []map[string]any{row}, nil, nil)
			if err != nil {
				return err
			}
			if len(doc) > 0 {
				created = doc[0]
			}
			return nil
		})
		return created, err
	})
}

// Update applies payload to the records matching filters and returns them with
// ReturnColumns when set. Matching nothing is not an error.
func (c *CRUD) Update(ctx context.Context, payload map[string]any, filters query.Filters, opts UpdateOptions) ([]schema.Document, error) {
	return withEventEmission(c, OpUpdate, payload, filters, func() ([]schema.Document, error) {
		if extra := c.unknownColumns(payload); len(extra) > 0 {
			return nil, core.NewConfigError("payload", "Extra fields provided: %s", strings.Join(extra, ", "))
		}
		if err := schema.NewValidator(c.model).Check(payload, schema.ModePartial); err != nil {
			return nil, err
		}
		if err := shape.ValidateProjection(opts.ReturnColumns, c.model.ColumnNames()); err != nil {
			return nil, err
		}
		resolved, err := c.resolver.Resolve(c.base, filters)
		if err != nil {
			return nil, err
		}
		total, err := c.count(ctx, &query.QueryPlan{Base: c.base, Filters: resolved})
		if err != nil {
			return nil, err
		}
		if total > 1 && !opts.AllowMultiple {
			return nil, &core.MultipleResultsError{Operation: string(OpUpdate), Count: total}
		}

		values := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			values[k] = v
		}
		if col := c.options.UpdatedAtColumn; c.model.HasColumn(col) {
			if _, set := values[col]; !set {
				values[col] = c.options.Now().UTC()
			}
		}

		var updated []schema.Document
		err = c.write(ctx, opts.NoCommit, func() error {
			updated, err = c.update(ctx, values, resolved, opts.ReturnColumns)
			return err
		})
		if err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// Delete soft-deletes the records matching filters when the model carries the
// configured is-deleted column, and removes them otherwise. Matching nothing is
// core.ErrNotFound.
func (c *CRUD) Delete(ctx context.Context, filters query.Filters, opts DeleteOptions) error {
	_, err := withEventEmission(c, OpDelete, filters, nil, func() (int64, error) {
		resolved, total, err := c.deleteTargets(ctx, OpDelete, filters, opts)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 0, fmt.Errorf("no %s record found to delete: %w", c.model.Name, core.ErrNotFound)
		}

		if !c.model.HasColumn(c.options.IsDeletedColumn) {
			return total, c.write(ctx, opts.NoCommit, func() error {
				return c.hardDelete(ctx, resolved)
			})
		}

		values := map[string]any{c.options.IsDeletedColumn: true}
		if c.model.HasColumn(c.options.DeletedAtColumn) {
			values[c.options.DeletedAtColumn] = c.options.Now().UTC()
		}
		return total, c.write(ctx, opts.NoCommit, func() error {
			stmt, err := c.compiler.Update(c.model, values, resolved, nil)
			if err != nil {
				return err
			}
			return c.exec(ctx, stmt)
		})
	})
	return err
}

// DBDelete removes the records matching filters regardless of soft-delete columns.
func (c *CRUD) DBDelete(ctx context.Context, filters query.Filters, opts DeleteOptions) error {
	_, err := withEventEmission(c, OpDBDelete, filters, nil, func() (int64, error) {
		resolved, total, err := c.deleteTargets(ctx, OpDBDelete, filters, opts)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 0, nil
		}
		return total, c.write(ctx, opts.NoCommit, func() error {
			return c.hardDelete(ctx, resolved)
		})
	})
	return err
}

// UpsertMulti inserts instances, updating the non-key columns of rows whose
// primary key already exists. It returns the rows with ReturnColumns when set.
func (c *CRUD) UpsertMulti(ctx context.Context, instances []map[string]any, opts UpsertOptions) ([]schema.Document, error) {
	return withEventEmission(c, OpUpsertMulti, instances, opts, func() ([]schema.Document, error) {
		if len(instances) == 0 {
			return []schema.Document{}, nil
		}
		if err := shape.ValidateProjection(opts.ReturnColumns, c.model.ColumnNames()); err != nil {
			return nil, err
		}
		pks := c.model.PrimaryKeys()
		isKey := make(map[string]bool, len(pks))
		for _, pk := range pks {
			isKey[pk] = true
		}
		override := make(map[string]any, len(opts.UpdateOverride))
		for name, value := range opts.UpdateOverride {
			col, ok := c.model.Column(name)
			if !ok {
				return nil, core.NewConfigError("update_override", "Invalid column name: %s", name)
			}
			if isKey[name] {
				return nil, core.NewConfigError("update_override", "primary key column %s cannot be overridden", name)
			}
			prepared, err := c.ec.Dialect().PrepareValue(col.Type, value)
			if err != nil {
				return nil, err
			}
			override[name] = prepared
		}

		rows := make([]map[string]any, len(instances))
		for i, instance := range instances {
			if err := schema.NewValidator(c.model).Check(instance, schema.ModeCreate); err != nil {
				return nil, err
			}
			rows[i] = c.withColumnDefaults(instance)
		}

		// Override columns are updated on conflict even when the payload omits them.
		var updateColumns []string
		for _, name := range c.model.ColumnNames() {
			if isKey[name] {
				continue
			}
			_, present := rows[0][name]
			_, overridden := override[name]
			if present || overridden {
				updateColumns = append(updateColumns, name)
			}
		}
		spec := &query.UpsertSpec{
			Table:           c.model.Name,
			ConflictColumns: pks,
			UpdateColumns:   updateColumns,
			Override:        override,
		}

		var out []schema.Document
		err := c.write(ctx, opts.NoCommit, func() error {
			docs, err := c.insert(ctx, rows, spec, opts.ReturnColumns)
			out = docs
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(opts.ReturnColumns) == 0 {
			return []schema.Document{}, nil
		}
		return shape.Project(out, opts.ReturnColumns), nil
	})
}

// Upsert is UpsertMulti for a single instance.
func (c *CRUD) Upsert(ctx context.Context, instance map[string]any, opts UpsertOptions) (schema.Document, error) {
	returning := opts
	if len(returning.ReturnColumns) == 0 {
		returning.ReturnColumns = c.model.ColumnNames()
	}
	docs, err := c.UpsertMulti(ctx, []map[string]any{instance}, returning)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// write runs fn as one unit of work. It commits unless noCommit is set and
// rolls back when fn fails.
func (c *CRUD) write(ctx context.Context, noCommit bool, fn func() error) error {
	if err := fn(); err != nil {
		if !noCommit {
			if rbErr := c.ec.Rollback(ctx); rbErr != nil {
				c.logger.Error("Rollback failed", zap.String("model", c.model.Name), zap.Error(rbErr))
			}
		}
		return err
	}
	if noCommit {
		return nil
	}
	if err := c.ec.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s write: %w", c.model.Name, err)
	}
	return nil
}

// insert runs an INSERT and returns the stored rows. Without RETURNING support the
// rows are read back by primary key.
func (c *CRUD) insert(ctx context.Context, rows []map[string]any, upsert *query.UpsertSpec, returning []string) ([]schema.Document, error) {
	if returning == nil && upsert == nil {
		returning = c.model.ColumnNames()
	}
	spec := query.InsertSpec{Model: c.model, Rows: rows, Upsert: upsert, Returning: returning}

	if len(returning) > 0 && c.ec.Dialect().SupportsReturning() {
		stmt, err := c.compiler.Insert(spec)
		if err != nil {
			return nil, err
		}
		docs, err := c.ec.Query(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", c.model.Name, err)
		}
		return docs, nil
	}

	spec.Returning = nil
	stmt, err := c.compiler.Insert(spec)
	if err != nil {
		return nil, err
	}
	result, err := c.ec.Exec(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", c.model.Name, err)
	}
	if len(returning) == 0 {
		return nil, nil
	}

	keys := make([][]any, 0, len(rows))
	for _, row := range rows {
		key, present := c.model.KeyOf(row)
		if !present && len(rows) == 1 {
			key, present = c.generatedKey(result)
		}
		if present {
			keys = append(keys, key)
		}
	}
	return c.readKeys(ctx, keys)
}

// generatedKey recovers the key of a single inserted row from LastInsertID. It
// applies only to models with one integer primary key.
func (c *CRUD) generatedKey(result ExecResult) ([]any, bool) {
	pks := c.model.PrimaryKeys()
	if len(pks) != 1 {
		return nil, false
	}
	col, _ := c.model.Column(pks[0])
	if col.Type != schema.FieldTypeInteger {
		return nil, false
	}
	return []any{result.LastInsertID}, true
}

func (c *CRUD) update(ctx context.Context, values map[string]any, resolved []query.QueryFilter, returning []string) ([]schema.Document, error) {
	if len(returning) > 0 && c.ec.Dialect().SupportsReturning() {
		stmt, err := c.compiler.Update(c.model, values, resolved, returning)
		if err != nil {
			return nil, err
		}
		docs, err := c.ec.Query(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", c.model.Name, err)
		}
		return docs, nil
	}

	var keys [][]any
	if len(returning) > 0 {
		// Filters may target the columns being changed, so keys are captured first.
		matched, err := c.selectRows(ctx, &query.QueryPlan{Base: c.base, Filters: resolved, Columns: c.model.PrimaryKeys()})
		if err != nil {
			return nil, err
		}
		for _, row := range matched {
			key, _ := c.model.KeyOf(row)
			keys = append(keys, key)
		}
	}

	stmt, err := c.compiler.Update(c.model, values, resolved, nil)
	if err != nil {
		return nil, err
	}
	if err := c.exec(ctx, stmt); err != nil {
		return nil, err
	}
	if len(returning) == 0 {
		return nil, nil
	}
	docs, err := c.readKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	return shape.Project(docs, returning), nil
}

func (c *CRUD) readKeys(ctx context.Context, keys [][]any) ([]schema.Document, error) {
	if len(keys) == 0 {
		return []schema.Document{}, nil
	}
	return c.selectRows(ctx, &query.QueryPlan{Base: c.base, Keys: keys})
}

func (c *CRUD) deleteTargets(ctx context.Context, op Operation, filters query.Filters, opts DeleteOptions) ([]query.QueryFilter, int64, error) {
	resolved, err := c.resolver.Resolve(c.base, filters)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.count(ctx, &query.QueryPlan{Base: c.base, Filters: resolved})
	if err != nil {
		return nil, 0, err
	}
	if total > 1 && !opts.AllowMultiple {
		return nil, 0, &core.MultipleResultsError{Operation: string(op), Count: total}
	}
	return resolved, total, nil
}

// hardDelete runs after deleteTargets has enforced the multiplicity rule, so an
// unfiltered delete is allowed here.
func (c *CRUD) hardDelete(ctx context.Context, resolved []query.QueryFilter) error {
	stmt, err := c.compiler.Delete(c.model, resolved, true)
	if err != nil {
		return err
	}
	return c.exec(ctx, stmt)
}

func (c *CRUD) exec(ctx context.Context, stmt query.Statement) error {
	if _, err := c.ec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.model.Name, err)
	}
	return nil
}

// withColumnDefaults copies payload and fills declared column defaults.
func (c *CRUD) withColumnDefaults(payload map[string]any) map[string]any {
	row := make(map[string]any, len(c.model.Columns))
	for k, v := range payload {
		row[k] = v
	}
	for _, col := range c.model.Columns {
		if _, set := row[col.Name]; !set && col.Default != nil {
			row[col.Name] = col.Default
		}
	}
	return row
}

func (c *CRUD) unknownColumns(payload map[string]any) []string {
	var extra []string
	for name := range payload {
		if !c.model.HasColumn(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}
