package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidSaleItem       = errors.New("invalid sale item")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrCyclicRecipe          = errors.New("cyclic recipe")
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrSessionAlreadyOpen    = errors.New("cash session already open")
	ErrSessionClosed         = errors.New("cash session closed")
	ErrNotStocked            = errors.New("item is made from a recipe and holds no stock")
	ErrDuplicate             = errors.New("duplicate")
	ErrConflict              = errors.New("concurrent update conflict")
)

// InsufficientInventoryError reports the shortfall for one stocked item.
type InsufficientInventoryError struct {
	ItemID    string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for item %s: available %s, required %s", e.ItemID, e.Available, e.Required)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

type StatusTransitionError struct {
	From domain.FulfillmentStatus
	To   domain.FulfillmentStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status: cannot move from %s to %s", e.From, e.To)
}

func (e *StatusTransitionError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// CyclicRecipeError carries the item path that closes the cycle.
type CyclicRecipeError struct {
	Path []string
}

func (e *CyclicRecipeError) Error() string {
	return "cyclic recipe: " + strings.Join(e.Path, " -> ")
}

func (e *CyclicRecipeError) Is(target error) bool {
	return target == ErrCyclicRecipe
}
