package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-crud/core"
)

type omitFilter struct{}

// Omit is returned by a dependency to drop its filter for the current call. A nil
// result has the same effect.
var Omit any = omitFilter{}

// ResolveFunc computes a dependency value. args holds the resolved values of the
// dependency's Requires, in order.
type ResolveFunc func(ctx context.Context, args []any) (any, error)

// Dependency is a deferred filter value. It is resolved once per request, after its
// own requirements.
type Dependency struct {
	Name     string
	Requires []*Dependency
	Resolve  ResolveFunc
}

// Provide wraps a function without requirements as a Dependency.
func Provide(name string, fn func(ctx context.Context) (any, error)) *Dependency {
	return &Dependency{
		Name: name,
		Resolve: func(ctx context.Context, _ []any) (any, error) {
			return fn(ctx)
		},
	}
}

// DependsOn builds a Dependency whose function receives the values of requires.
func DependsOn(name string, fn ResolveFunc, requires ...*Dependency) *Dependency {
	return &Dependency{Name: name, Requires: requires, Resolve: fn}
}

// DependencyScope memoizes dependency values for a single request.
type DependencyScope struct {
	mu       sync.Mutex
	resolved map[*Dependency]any
	active   map[*Dependency]bool
}

// NewDependencyScope creates an empty per-request scope.
func NewDependencyScope() *DependencyScope {
	return &DependencyScope{
		resolved: make(map[*Dependency]any),
		active:   make(map[*Dependency]bool),
	}
}

// Resolve returns the value of a dependency, invoking it at most once per scope.
func (s *DependencyScope) Resolve(ctx context.Context, d *Dependency) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(ctx, d)
}

func (s *DependencyScope) resolve(ctx context.Context, d *Dependency) (any, error) {
	if v, ok := s.resolved[d]; ok {
		return v, nil
	}
	if d.Resolve == nil {
		return nil, core.NewConfigError(d.Name, "dependency has no resolve function")
	}
	if s.active[d] {
		return nil, core.NewConfigError(d.Name, "dependency cycle detected")
	}
	s.active[d] = true
	defer delete(s.active, d)

	args := make([]any, len(d.Requires))
	for i, req := range d.Requires {
		v, err := s.resolve(ctx, req)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := d.Resolve(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("resolve dependency %s: %w", d.Name, err)
	}
	s.resolved[d] = v
	return v, nil
}

// ResolveFilters replaces every Dependency value, including those nested in `_or`,
// `__or` and `__not` groups, with its resolved value. Filters whose value resolves
// to nil or Omit are dropped.
func ResolveFilters(ctx context.Context, filters Filters, scope *DependencyScope) (Filters, error) {
	if scope == nil {
		scope = NewDependencyScope()
	}
	out := make(Filters, 0, len(filters))
	for _, f := range filters {
		value, keep, err := resolveValue(ctx, f.Value, scope)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, Filter{Key: f.Key, Value: value})
		}
	}
	return out, nil
}

func resolveValue(ctx context.Context, value any, scope *DependencyScope) (any, bool, error) {
	switch v := value.(type) {
	case *Dependency:
		resolved, err := scope.Resolve(ctx, v)
		if err != nil {
			return nil, false, err
		}
		if resolved == nil || resolved == Omit {
			return nil, false, nil
		}
		return resolved, true, nil
	case Filters:
		nested, err := ResolveFilters(ctx, v, scope)
		if err != nil {
			return nil, false, err
		}
		return nested, len(nested) > 0, nil
	case []Filter:
		nested, err := ResolveFilters(ctx, Filters(v), scope)
		if err != nil {
			return nil, false, err
		}
		return nested, len(nested) > 0, nil
	case map[string]any:
		nested, err := ResolveFilters(ctx, FiltersFromMap(v), scope)
		if err != nil {
			return nil, false, err
		}
		return nested, len(nested) > 0, nil
	default:
		return value, true, nil
	}
}

// HasDependencies reports whether any filter value is still a Dependency.
func HasDependencies(filters Filters) bool {
	for _, f := range filters {
		switch v := f.Value.(type) {
		case *Dependency:
			return true
		case Filters:
			if HasDependencies(v) {
				return true
			}
		case []Filter:
			if HasDependencies(Filters(v)) {
				return true
			}
		case map[string]any:
			if HasDependencies(FiltersFromMap(v)) {
				return true
			}
		}
	}
	return false
}
