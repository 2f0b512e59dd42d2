package query

import (
	"testing"

	"github.com/asaidimu/go-crud/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFiltersJSON(t *testing.T) {
	filters, err := ParseFiltersJSON(`{
		"name": "x",
		"age__in": [1, 2.5, "three"],
		"email": null,
		"_or": {"age__gt": 65, "active": true},
		"name__not": {"eq": "root"}
	}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age__in", "email", "_or", "name__not"}, filters.Keys())
	assert.Equal(t, Filters{
		F("name", "x"),
		F("age__in", []any{int64(1), 2.5, "three"}),
		F("email", nil),
		F("_or", Filters{F("age__gt", int64(65)), F("active", true)}),
		F("name__not", Filters{F("eq", "root")}),
	}, filters)

	// the parsed document resolves like hand written filters
	_, err = NewResolver(nil).Resolve(users, Filters{filters[3], filters[4]})
	require.NoError(t, err)
}

func TestParseFiltersJSONErrors(t *testing.T) {
	_, err := ParseFiltersJSON(`{"name": `)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = ParseFiltersJSON(`[1, 2]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a JSON object")

	filters, err := ParseFiltersJSON(`{}`)
	require.NoError(t, err)
	assert.Empty(t, filters)
}
