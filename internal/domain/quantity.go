package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("invalid quantity")

// Quantities and amounts are fixed point: at most MaxIntegerDigits digits
// before the decimal point and MaxScale after it.
const (
	MaxIntegerDigits = 12
	MaxScale         = 6

	maxQuantityText = 40
)

var quantityCeiling = decimal.New(1, MaxIntegerDigits)

// ParseQuantity parses a signed decimal quantity such as "-5" or "0.25".
func ParseQuantity(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidQuantity)
	}
	if len(raw) > maxQuantityText {
		return decimal.Zero, fmt.Errorf("%w: too long", ErrInvalidQuantity)
	}
	qty, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidQuantity, raw)
	}
	if err := CheckQuantity(qty); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// CheckQuantity rejects values outside the fixed-point range. The exponent and
// coefficient size are checked before any arithmetic touches the value.
func CheckQuantity(qty decimal.Decimal) error {
	exp := qty.Exponent()
	if exp > MaxIntegerDigits || exp < -(MaxScale+MaxIntegerDigits) || qty.Coefficient().BitLen() > 128 {
		return fmt.Errorf("%w: exponent %d or precision out of range", ErrInvalidQuantity, exp)
	}
	if qty.Abs().GreaterThanOrEqual(quantityCeiling) {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidQuantity, MaxIntegerDigits)
	}
	if !qty.Equal(qty.Truncate(MaxScale)) {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidQuantity, MaxScale)
	}
	return nil
}
