package query

import (
	"fmt"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewOperatorRegistry(zap.NewNop())
	ops := r.Operators()
	for _, op := range []Operator{OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpIs, OpIsNot, OpLike, OpNotLike,
		OpILike, OpNotILike, OpStartsWith, OpEndsWith, OpContains, OpMatch, OpIn, OpNotIn, OpBetween} {
		assert.Contains(t, ops, op)
	}
	assert.True(t, r.Has(Operator(LogicalOr)))
	assert.True(t, r.Has(Operator(LogicalNot)))
	assert.False(t, r.Has("approximately"))
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRegistryCustomOperator(t *testing.T) {
	r := NewOperatorRegistry(nil)
	err := r.Register("len_gt", OperatorDefinition{
		Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Expr("LENGTH("+col+") > ?", v), nil
		},
	})
	require.NoError(t, err)

	resolver := NewResolver(r)
	resolved, err := resolver.Resolve(users, Filters{F("name__len_gt", 3)})
	require.NoError(t, err)
	where, err := resolver.Compile(resolved, PostgresDialect{})
	require.NoError(t, err)
	sql, args, err := where.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `(LENGTH("users"."name") > ?)`, sql)
	assert.Equal(t, []any{3}, args)

	// custom operators without a validator get the scalar check
	_, err = resolver.Resolve(users, Filters{F("name__len_gt", nil)})
	assert.Error(t, err)

	// the default registry is untouched
	_, err = NewResolver(nil).Resolve(users, Filters{F("name__len_gt", 3)})
	assert.Error(t, err)
}

func TestRegistryCustomValidator(t *testing.T) {
	r := NewOperatorRegistry(nil)
	require.NoError(t, r.Register("even", OperatorDefinition{
		Validate: func(op Operator, v any) error {
			if n, ok := v.(int); !ok || n%2 != 0 {
				return fmt.Errorf("%s filter requires an even integer", op)
			}
			return nil
		},
		Build: func(col string, v any, _ Dialect) (sq.Sqlizer, error) {
			return sq.Eq{col: v}, nil
		},
	}))
	_, err := NewResolver(r).Resolve(users, Filters{F("age__even", 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an even integer")
}

func TestRegistryRejects(t *testing.T) {
	r := NewOperatorRegistry(nil)
	build := func(col string, v any, _ Dialect) (sq.Sqlizer, error) { return sq.Eq{col: v}, nil }

	assert.Error(t, r.Register("", OperatorDefinition{Build: build}))
	assert.Error(t, r.Register("or", OperatorDefinition{Build: build}))
	assert.Error(t, r.Register("not", OperatorDefinition{Build: build}))
	assert.Error(t, r.Register("nobuild", OperatorDefinition{}))
}
