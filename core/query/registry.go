package query

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

// OperandValidator checks that an operand has the shape the operator expects.
type OperandValidator func(op Operator, value any) error

// PredicateBuilder renders a predicate on an already quoted column expression.
type PredicateBuilder func(column string, value any, d Dialect) (sq.Sqlizer, error)

// OperatorDefinition pairs the arity check of an operator with its SQL rendering.
type OperatorDefinition struct {
	Validate OperandValidator
	Build    PredicateBuilder
}

// OperatorRegistry maps operator tokens to their definitions. The built-in
// operators are registered on construction; callers may add their own.
type OperatorRegistry struct {
	mu        sync.RWMutex
	operators map[Operator]OperatorDefinition
	logger    *zap.Logger
}

var (
	defaultRegistry     *OperatorRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns a process-wide registry holding the built-in operators.
func DefaultRegistry() *OperatorRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewOperatorRegistry(nil)
	})
	return defaultRegistry
}

// NewOperatorRegistry creates a registry preloaded with the built-in operators.
func NewOperatorRegistry(logger *zap.Logger) *OperatorRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &OperatorRegistry{
		operators: make(map[Operator]OperatorDefinition),
		logger:    logger,
	}
	for op, def := range builtinOperators() {
		r.operators[op] = def
	}
	return r
}

// Register adds or replaces an operator. The logical tokens `or` and `not` are
// reserved for grouping and cannot be registered.
func (r *OperatorRegistry) Register(op Operator, def OperatorDefinition) error {
	if op == "" {
		return fmt.Errorf("operator name is required")
	}
	if op == Operator(LogicalOr) || op == Operator(LogicalNot) {
		return fmt.Errorf("operator %q is reserved", op)
	}
	if def.Build == nil {
		return fmt.Errorf("operator %q has no predicate builder", op)
	}
	if def.Validate == nil {
		def.Validate = validateScalar
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[op] = def
	r.logger.Info("Registered filter operator", zap.String("operator", string(op)))
	return nil
}

// Lookup returns the definition of an operator.
func (r *OperatorRegistry) Lookup(op Operator) (OperatorDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.operators[op]
	return def, ok
}

// Has reports whether the token is a known operator or logical group.
func (r *OperatorRegistry) Has(op Operator) bool {
	if op == Operator(LogicalOr) || op == Operator(LogicalNot) {
		return true
	}
	_, ok := r.Lookup(op)
	return ok
}

// Operators lists the registered operator tokens, sorted.
func (r *OperatorRegistry) Operators() []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]Operator, 0, len(r.operators))
	for op := range r.operators {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func builtinOperators() map[Operator]OperatorDefinition {
	return map[Operator]OperatorDefinition{
		OpEq: {Validate: validateNullableScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Eq{col: v}, nil
		}},
		OpNe: {Validate: validateNullableScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.NotEq{col: v}, nil
		}},
		OpGt: {Validate: validateScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Gt{col: v}, nil
		}},
		OpLt: {Validate: validateScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Lt{col: v}, nil
		}},
		OpGte: {Validate: validateScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.GtOrEq{col: v}, nil
		}},
		OpLte: {Validate: validateScalar, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.LtOrEq{col: v}, nil
		}},
		OpIs: {Validate: validateIdentity, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Expr(col + " IS " + identityLiteral(v)), nil
		}},
		OpIsNot: {Validate: validateIdentity, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Expr(col + " IS NOT " + identityLiteral(v)), nil
		}},
		OpLike: {Validate: validateString, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Like{col: v}, nil
		}},
		OpNotLike: {Validate: validateString, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.NotLike{col: v}, nil
		}},
		OpILike: {Validate: validateString, Build: func(col string, v any, d Dialect) (sq.Sqlizer, error) {
			return d.ILike(col, v, false), nil
		}},
		OpNotILike: {Validate: validateString, Build: func(col string, v any, d Dialect) (sq.Sqlizer, error) {
			return d.ILike(col, v, true), nil
		}},
		OpStartsWith: {Validate: validateString, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Like{col: v.(string) + "%"}, nil
		}},
		OpEndsWith: {Validate: validateString, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Like{col: "%" + v.(string)}, nil
		}},
		OpContains: {Validate: validateString, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Like{col: "%" + v.(string) + "%"}, nil
		}},
		OpMatch: {Validate: validateString, Build: func(col string, v any, d Dialect) (sq.Sqlizer, error) {
			return d.Match(col, v), nil
		}},
		OpIn: {Validate: validateCollection, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Eq{col: toSlice(v)}, nil
		}},
		OpNotIn: {Validate: validateCollection, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.NotEq{col: toSlice(v)}, nil
		}},
		OpBetween: {Validate: validateRange, Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			bounds := toSlice(v)
			return sq.Expr(col+" BETWEEN ? AND ?", bounds[0], bounds[1]), nil
		}},
	}
}

func isCollection(value any) bool {
	if value == nil {
		return false
	}
	if _, isBytes := value.([]byte); isBytes {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func toSlice(value any) []any {
	if items, ok := value.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(value)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}

func validateNullableScalar(op Operator, value any) error {
	if value == nil {
		return nil
	}
	return validateScalar(op, value)
}

func validateScalar(op Operator, value any) error {
	if value == nil {
		return fmt.Errorf("%s filter requires a value, got nil", op)
	}
	if isCollection(value) {
		return fmt.Errorf("%s filter requires a single value, got %v", op, value)
	}
	if kind := reflect.TypeOf(value).Kind(); kind == reflect.Map {
		return fmt.Errorf("%s filter requires a single value, got %v", op, value)
	}
	return nil
}

func validateIdentity(op Operator, value any) error {
	switch value.(type) {
	case nil, bool:
		return nil
	}
	return fmt.Errorf("%s filter accepts only true, false or nil, got %v", op, value)
}

func validateString(op Operator, value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("%s filter requires a string, got %T", op, value)
	}
	return nil
}

func validateCollection(op Operator, value any) error {
	if !isCollection(value) {
		return fmt.Errorf("%s filter must be tuple, list or set", op)
	}
	return nil
}

func validateRange(op Operator, value any) error {
	if err := validateCollection(op, value); err != nil {
		return err
	}
	if n := reflect.ValueOf(value).Len(); n != 2 {
		return fmt.Errorf("%s filter requires exactly 2 values, got %d: %v", op, n, value)
	}
	return nil
}

func identityLiteral(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NULL"
	}
}
