package persistence

import (
	"context"

	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/core/shape"
	"github.com/asaidimu/go-crud/utils"
)

// CreateFrom creates a record from a struct (or map), using json field names as
// column names.
func CreateFrom(ctx context.Context, c *CRUD, record any, opts CreateOptions) (schema.Document, error) {
	payload, err := utils.StructToMap(record)
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, payload, opts)
}

// GetAs reads one record projected onto the json fields of T. The boolean is
// false when nothing matches.
func GetAs[T any](ctx context.Context, c *CRUD, filters query.Filters, opts GetOptions) (T, bool, error) {
	var zero T
	if opts.Columns == nil {
		opts.Columns = shape.Columns[T]()
	}
	doc, err := c.Get(ctx, filters, opts)
	if err != nil || doc == nil {
		return zero, false, err
	}
	out, err := shape.Convert[T](doc)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// GetMultiAs is GetMulti decoding each record into T. The envelope is returned
// alongside for its paging fields.
func GetMultiAs[T any](ctx context.Context, c *CRUD, opts GetMultiOptions) ([]T, *query.ResultEnvelope, error) {
	if opts.Columns == nil {
		opts.Columns = shape.Columns[T]()
	}
	envelope, err := c.GetMulti(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	items, err := shape.ConvertAll[T](envelope.Data)
	if err != nil {
		return nil, nil, err
	}
	return items, envelope, nil
}

// GetMultiJoinedAs is GetMultiJoined decoding each shaped record into T. Nested
// members decode into struct or slice fields tagged with the join's output key.
func GetMultiJoinedAs[T any](ctx context.Context, c *CRUD, opts JoinedOptions) ([]T, *query.ResultEnvelope, error) {
	envelope, err := c.GetMultiJoined(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	items, err := shape.ConvertAll[T](envelope.Data)
	if err != nil {
		return nil, nil, err
	}
	return items, envelope, nil
}
