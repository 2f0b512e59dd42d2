// Package persistence provides the CRUD façade: model-scoped create, read, update,
// delete and upsert operations compiled by core/query, run on an ExecutionContext
// and shaped by core/shape.
package persistence

import (
	"fmt"
	"sync"

	"github.com/asaidimu/go-crud/core"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-events"
	"go.uber.org/zap"
)

// CRUD binds a model to an execution context. It is safe for concurrent use; its
// configuration does not change after New.
type CRUD struct {
	model    *schema.Model
	base     query.Entity
	ec       ExecutionContext
	options  Options
	logger   *zap.Logger
	resolver *query.Resolver
	planner  *query.JoinPlanner
	compiler *query.Compiler

	bus           *events.TypedEventBus[OperationEvent]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// New validates the model and options and creates a façade. A nil opts uses
// DefaultOptions.
func New(model *schema.Model, ec ExecutionContext, opts *Options) (*CRUD, error) {
	if model == nil {
		return nil, core.NewConfigError("model", "a model is required")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if ec == nil {
		return nil, core.NewConfigError("context", "an execution context is required")
	}

	options := opts.withDefaults()
	resolver := query.NewResolver(options.Registry)
	base := query.Entity{Model: model}

	if err := validateFilterConfig(resolver, base, options.FilterConfig); err != nil {
		return nil, err
	}

	bus, err := events.NewTypedEventBus[OperationEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &CRUD{
		model:         model,
		base:          base,
		ec:            ec,
		options:       options,
		logger:        options.Logger,
		resolver:      resolver,
		planner:       query.NewJoinPlanner(resolver),
		compiler:      query.NewCompiler(ec.Dialect(), resolver, options.Logger),
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// validateFilterConfig checks default filters once so a bad key fails at
// construction rather than on the first read.
func validateFilterConfig(resolver *query.Resolver, base query.Entity, config query.Filters) error {
	for _, f := range config {
		if query.HasDependencies(query.Filters{f}) {
			if err := resolver.ValidateKey(base, f.Key); err != nil {
				return err
			}
			continue
		}
		if _, err := resolver.Resolve(base, query.Filters{f}); err != nil {
			return err
		}
	}
	return nil
}

// Model returns the model the façade operates on.
func (c *CRUD) Model() *schema.Model {
	return c.model
}

// Options returns a copy of the effective configuration.
func (c *CRUD) Options() Options {
	out := c.options
	out.FilterConfig = append(query.Filters(nil), c.options.FilterConfig...)
	return out
}

// Key builds equality filters from a primary key tuple given in declared key
// order. It is how composite keys are addressed.
func (c *CRUD) Key(values ...any) (query.Filters, error) {
	return Key(c.model, values...)
}

// Key builds equality filters on the primary key of model.
func Key(model *schema.Model, values ...any) (query.Filters, error) {
	pks := model.PrimaryKeys()
	if len(values) != len(pks) {
		return nil, core.NewConfigError("key", "%s has %d primary key columns %v, got %d values", model.Name, len(pks), pks, len(values))
	}
	filters := make(query.Filters, len(pks))
	for i, pk := range pks {
		filters[i] = query.F(pk, values[i])
	}
	return filters, nil
}
