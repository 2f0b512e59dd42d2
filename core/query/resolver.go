package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-crud/core"
)

// Resolver parses keyword filters into predicates and compiles predicates to SQL.
// It keeps no per-call state.
type Resolver struct {
	registry *OperatorRegistry
}

// NewResolver creates a resolver over an operator registry. A nil registry means
// the default registry.
func NewResolver(registry *OperatorRegistry) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Resolver{registry: registry}
}

// Registry returns the operator registry used by the resolver.
func (r *Resolver) Registry() *OperatorRegistry {
	return r.registry
}

// Resolve turns filters into predicates against base. Keys may be qualified as
// `entity.column` to target one of scopes.
func (r *Resolver) Resolve(base Entity, filters Filters, scopes ...Entity) ([]QueryFilter, error) {
	resolved := make([]QueryFilter, 0, len(filters))
	for _, f := range filters {
		qf, err := r.resolveOne(base, f, scopes)
		if err != nil {
			return nil, err
		}
		if qf != nil {
			resolved = append(resolved, *qf)
		}
	}
	return resolved, nil
}

func (r *Resolver) resolveOne(base Entity, f Filter, scopes []Entity) (*QueryFilter, error) {
	if _, deferred := f.Value.(*Dependency); deferred {
		return nil, core.NewConfigError(f.Key, "value providers are only resolved by GetMulti")
	}

	if f.Key == MultiFieldOrKey {
		members, err := asFilters(f.Key, f.Value)
		if err != nil {
			return nil, err
		}
		resolved, err := r.Resolve(base, members, scopes...)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return nil, nil
		}
		return &QueryFilter{Group: &PredicateGroup{Logic: LogicalOr, Members: resolved}}, nil
	}

	column, op := r.splitKey(f.Key)
	ref, err := r.column(base, scopes, column)
	if err != nil {
		return nil, err
	}

	if op == Operator(LogicalOr) || op == Operator(LogicalNot) {
		members, err := r.resolveGroup(f.Key, ref, f.Value)
		if err != nil {
			return nil, err
		}
		return &QueryFilter{Group: &PredicateGroup{Logic: LogicalOperator(op), Column: &ref, Members: members}}, nil
	}

	predicate, err := r.predicate(f.Key, ref, op, f.Value)
	if err != nil {
		return nil, err
	}
	return &QueryFilter{Predicate: predicate}, nil
}

// ValidateKey checks that a filter key names a column of base (or of one of
// scopes) and, when it carries one, a registered operator. Values are not looked
// at, so keys whose values are only known later can be checked up front.
func (r *Resolver) ValidateKey(base Entity, key string, scopes ...Entity) error {
	if key == MultiFieldOrKey {
		return nil
	}
	column, _ := r.splitKey(key)
	_, err := r.column(base, scopes, column)
	return err
}

// splitKey splits on the last separator. An unknown suffix means the whole key is
// a column name compared with eq.
func (r *Resolver) splitKey(key string) (string, Operator) {
	idx := strings.LastIndex(key, Separator)
	if idx <= 0 {
		return key, OpEq
	}
	op := Operator(key[idx+len(Separator):])
	if !r.registry.Has(op) {
		return key, OpEq
	}
	return key[:idx], op
}

func (r *Resolver) column(base Entity, scopes []Entity, name string) (ColumnRef, error) {
	entity := base
	column := name
	if dot := strings.Index(name, "."); dot > 0 {
		qualifier := name[:dot]
		column = name[dot+1:]
		found := false
		for _, e := range append([]Entity{base}, scopes...) {
			if e.Name() == qualifier {
				entity, found = e, true
				break
			}
		}
		if !found {
			return ColumnRef{}, core.NewConfigError(name, "Invalid filter column: %s", name)
		}
	}

	col, ok := entity.Model.Column(column)
	if !ok {
		return ColumnRef{}, core.NewConfigError(name, "Invalid filter column: %s", name)
	}
	return ColumnRef{Entity: entity.Name(), Column: col.Name, Type: col.Type}, nil
}

func (r *Resolver) resolveGroup(key string, ref ColumnRef, value any) ([]QueryFilter, error) {
	operands, err := asFilters(key, value)
	if err != nil {
		return nil, err
	}
	if len(operands) == 0 {
		return nil, core.NewConfigError(key, "%s group requires at least one operator", key)
	}
	members := make([]QueryFilter, 0, len(operands))
	for _, operand := range operands {
		op := Operator(operand.Key)
		if op == Operator(LogicalOr) || op == Operator(LogicalNot) {
			return nil, core.NewConfigError(key, "groups cannot nest %q", op)
		}
		predicate, err := r.predicate(key, ref, op, operand.Value)
		if err != nil {
			return nil, err
		}
		members = append(members, QueryFilter{Predicate: predicate})
	}
	return members, nil
}

func (r *Resolver) predicate(key string, ref ColumnRef, op Operator, value any) (*Predicate, error) {
	def, ok := r.registry.Lookup(op)
	if !ok {
		return nil, core.NewConfigError(key, "unknown filter operator %q", op)
	}
	if err := def.Validate(op, value); err != nil {
		return nil, &core.ConfigError{Param: key, Message: err.Error()}
	}
	return &Predicate{Column: ref, Operator: op, Value: value}, nil
}

func asFilters(key string, value any) (Filters, error) {
	switch v := value.(type) {
	case Filters:
		return v, nil
	case []Filter:
		return Filters(v), nil
	case map[string]any:
		return FiltersFromMap(v), nil
	default:
		return nil, core.NewConfigError(key, "%s expects a mapping of filters, got %T", key, value)
	}
}

// Compile renders resolved filters as one conjunction. It returns nil when there is
// nothing to filter on.
func (r *Resolver) Compile(filters []QueryFilter, d Dialect) (sq.Sqlizer, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	parts := make(sq.And, 0, len(filters))
	for _, f := range filters {
		part, err := r.compileFilter(f, d)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func (r *Resolver) compileFilter(f QueryFilter, d Dialect) (sq.Sqlizer, error) {
	switch {
	case f.Predicate != nil:
		def, ok := r.registry.Lookup(f.Predicate.Operator)
		if !ok {
			return nil, core.NewConfigError(f.Predicate.Column.Column, "unknown filter operator %q", f.Predicate.Operator)
		}
		return def.Build(QualifiedColumn(d, f.Predicate.Column.Entity, f.Predicate.Column.Column), f.Predicate.Value, d)
	case f.Group != nil:
		members := make([]sq.Sqlizer, 0, len(f.Group.Members))
		for _, m := range f.Group.Members {
			part, err := r.compileFilter(m, d)
			if err != nil {
				return nil, err
			}
			if f.Group.Logic == LogicalNot {
				sql, args, err := part.ToSql()
				if err != nil {
					return nil, err
				}
				part = sq.Expr("NOT ("+sql+")", args...)
			}
			members = append(members, part)
		}
		switch f.Group.Logic {
		case LogicalOr:
			return sq.Or(members), nil
		default:
			return sq.And(members), nil
		}
	default:
		return nil, fmt.Errorf("empty query filter")
	}
}

// QualifiedColumn quotes entity.column for the dialect.
func QualifiedColumn(d Dialect, entity, column string) string {
	return d.Quote(entity) + "." + d.Quote(column)
}
