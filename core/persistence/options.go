package persistence

import (
	"time"

	"github.com/asaidimu/go-crud/core/query"
	"go.uber.org/zap"
)

// Options configures a CRUD façade.
type Options struct {
	// IsDeletedColumn is the soft-delete flag. Delete sets it instead of removing
	// rows when the model has this column.
	IsDeletedColumn string
	// DeletedAtColumn is stamped with the current time on soft delete when present.
	DeletedAtColumn string
	// UpdatedAtColumn is stamped on every Update when present and not supplied.
	UpdatedAtColumn string

	Logger   *zap.Logger
	Registry *query.OperatorRegistry

	// FilterConfig holds default filters merged into every GetMulti. Values may be
	// plain or *query.Dependency. Filters passed to GetMulti win over defaults with
	// the same key.
	FilterConfig query.Filters

	// EmitEvents turns operation events on.
	EmitEvents bool

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		IsDeletedColumn: "is_deleted",
		DeletedAtColumn: "deleted_at",
		UpdatedAtColumn: "updated_at",
		Logger:          zap.NewNop(),
		Registry:        query.DefaultRegistry(),
		EmitEvents:      true,
		Now:             time.Now,
	}
}

// withDefaults fills zero-valued fields. Booleans are taken as given.
func (o *Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o == nil {
		return *defaults
	}
	out := *o
	if out.IsDeletedColumn == "" {
		out.IsDeletedColumn = defaults.IsDeletedColumn
	}
	if out.DeletedAtColumn == "" {
		out.DeletedAtColumn = defaults.DeletedAtColumn
	}
	if out.UpdatedAtColumn == "" {
		out.UpdatedAtColumn = defaults.UpdatedAtColumn
	}
	if out.Logger == nil {
		out.Logger = defaults.Logger
	}
	if out.Registry == nil {
		out.Registry = defaults.Registry
	}
	if out.Now == nil {
		out.Now = defaults.Now
	}
	out.FilterConfig = append(query.Filters(nil), o.FilterConfig...)
	return out
}

// CreateOptions configures Create.
type CreateOptions struct {
	// NoCommit leaves the unit of work open for the caller.
	NoCommit bool
}

// GetOptions configures Get.
type GetOptions struct {
	Columns []string
	// OneOrNone fails with core.ErrMultipleResults when more than one row matches.
	OneOrNone bool
}

// GetMultiOptions configures GetMulti.
type GetMultiOptions struct {
	Filters        query.Filters
	Pagination     query.Pagination
	SortColumns    []string
	SortOrders     []string
	Columns        []string
	SkipTotalCount bool
}

func (o GetMultiOptions) request() query.Request {
	return query.Request{
		Filters:        o.Filters,
		Pagination:     o.Pagination,
		SortColumns:    o.SortColumns,
		SortOrders:     o.SortOrders,
		Columns:        o.Columns,
		SkipTotalCount: o.SkipTotalCount,
	}
}

// CursorOptions configures GetMultiByCursor.
type CursorOptions struct {
	Filters query.Filters
	Page    query.CursorPage
	Columns []string
}

// JoinedOptions configures GetJoined and GetMultiJoined. It is the Request a
// query.QueryBuilder produces.
type JoinedOptions = query.Request

// UpdateOptions configures Update.
type UpdateOptions struct {
	AllowMultiple bool
	// ReturnColumns returns the updated rows with these columns.
	ReturnColumns []string
	NoCommit      bool
}

// DeleteOptions configures Delete and DBDelete.
type DeleteOptions struct {
	AllowMultiple bool
	NoCommit      bool
}

// UpsertOptions configures UpsertMulti.
type UpsertOptions struct {
	// UpdateOverride replaces the incoming values on conflicting rows.
	UpdateOverride map[string]any
	ReturnColumns  []string
	NoCommit       bool
}
