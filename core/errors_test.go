package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigErrorUnwrap(t *testing.T) {
	err := NewConfigError("sort_orders", "invalid sort order %q", "up")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, `sort_orders: invalid sort order "up"`, err.Error())

	wrapped := fmt.Errorf("get multi: %w", err)
	var ce *ConfigError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "sort_orders", ce.Param)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Issues: []Issue{
		{Code: "UNKNOWN_FIELD", Message: "unknown field", Path: "nickname"},
		{Code: "TYPE_MISMATCH", Message: "expected integer"},
	}}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation error: nickname: unknown field; expected integer", err.Error())
}

func TestMultipleResultsError(t *testing.T) {
	err := &MultipleResultsError{Operation: "update", Count: 2}
	assert.True(t, errors.Is(err, ErrMultipleResults))
	assert.Contains(t, err.Error(), "found 2")
}

func TestCompare(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"nil first", nil, 1, -1},
		{"both nil", nil, nil, 0},
		{"ints", int64(2), 10, -1},
		{"floats", 2.5, 2.5, 0},
		{"strings", "b", "a", 1},
		{"numeric strings compare as text", "10", "9", -1},
		{"bools", false, true, -1},
		{"times", now, now.Add(time.Second), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}
