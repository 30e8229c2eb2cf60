package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzatruck/backend/internal/domain"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("create sale: %w", &InsufficientInventoryError{
		ItemID:    "item-flour",
		Available: decimal.NewFromInt(3),
		Required:  decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, wrapped, ErrInsufficientInventory)

	var shortfall *InsufficientInventoryError
	require.True(t, errors.As(wrapped, &shortfall))
	assert.Equal(t, "3", shortfall.Available.String())
	assert.Equal(t, "5", shortfall.Required.String())

	assert.ErrorIs(t, &StatusTransitionError{From: domain.StatusDone, To: domain.StatusPrepping}, ErrInvalidStatus)

	cycle := &CyclicRecipeError{Path: []string{"a", "b", "a"}}
	assert.ErrorIs(t, cycle, ErrCyclicRecipe)
	assert.Equal(t, "cyclic recipe: a -> b -> a", cycle.Error())
	assert.NotErrorIs(t, cycle, ErrInvalidStatus)
}
