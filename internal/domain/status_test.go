package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentTransitionsAreOneDirectional(t *testing.T) {
	cases := []struct {
		from, to FulfillmentStatus
		ok       bool
	}{
		{StatusPending, StatusReceived, true},
		{StatusReceived, StatusPrepping, true},
		{StatusPrepping, StatusDone, true},
		{StatusPending, StatusPrepping, false},
		{StatusPending, StatusDone, false},
		{StatusDone, StatusPrepping, false},
		{StatusPrepping, StatusReceived, false},
		{StatusReceived, StatusReceived, false},
		{StatusDone, StatusDone, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseFulfillmentStatus(t *testing.T) {
	status, ok := ParseFulfillmentStatus(" prepping ")
	require.True(t, ok)
	assert.Equal(t, StatusPrepping, status)

	_, ok = ParseFulfillmentStatus("COOKED")
	assert.False(t, ok)
}

func TestParseQuantity(t *testing.T) {
	qty, err := ParseQuantity(" -5 ")
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(-5)))

	qty, err = ParseQuantity("0.125")
	require.NoError(t, err)
	assert.Equal(t, "0.125", qty.String())

	_, err = ParseQuantity("")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = ParseQuantity("five")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestParseQuantityRejectsUnboundedPrecision(t *testing.T) {
	for _, raw := range []string{
		"-1e-3000000",
		"1e3000000",
		"0.0000001",
		"1000000000000",
		"12345678901234567890123456789012345678901234",
	} {
		_, err := ParseQuantity(raw)
		assert.ErrorIs(t, err, ErrInvalidQuantity, raw)
	}

	qty, err := ParseQuantity("999999999999.999999")
	require.NoError(t, err)
	assert.Equal(t, "999999999999.999999", qty.String())

	qty, err = ParseQuantity("2.500000000")
	require.NoError(t, err, "trailing zeros stay within scale")
	assert.True(t, qty.Equal(decimal.RequireFromString("2.5")))
}

func TestCheckQuantityOnDecodedValues(t *testing.T) {
	huge := decimal.New(1, -3000000)
	assert.ErrorIs(t, CheckQuantity(huge), ErrInvalidQuantity)
	assert.ErrorIs(t, CheckQuantity(decimal.New(5, 12)), ErrInvalidQuantity)
	assert.NoError(t, CheckQuantity(decimal.RequireFromString("-0.25")))
	assert.NoError(t, CheckQuantity(decimal.Zero))
}
