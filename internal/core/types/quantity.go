// Package types defines shared value types for the ledger domain.
//
// All stock quantities are fixed-point decimals. Float arithmetic is
// banned from the ledger: every quantity that crosses a package boundary
// is a Quantity rounded to Scale digits, half up.
package types

import (
	"github.com/shopspring/decimal"

	"kilang/internal/core/apperror"
)

// Scale is the number of fractional digits every stored quantity carries.
const Scale = 4

// Quantity is a fixed-point stock quantity (liters, bottles, kilograms).
type Quantity = decimal.Decimal

// Zero is the zero quantity.
var Zero = decimal.Zero

// NewQuantity builds a quantity from an integer value and exponent,
// e.g. NewQuantity(1255, -1) = 125.5.
func NewQuantity(value int64, exp int32) Quantity {
	return decimal.New(value, exp)
}

// QuantityFromInt builds a whole-unit quantity.
func QuantityFromInt(n int64) Quantity {
	return decimal.NewFromInt(n)
}

// ParseQuantity parses a decimal string into a quantity rounded to Scale.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperror.NewValidation("invalid decimal quantity: " + s).WithCause(err)
	}
	return RoundQuantity(d), nil
}

// MustQuantity parses a decimal string, panicking on error.
// Use only in tests and static initializers.
func MustQuantity(s string) Quantity {
	d, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundQuantity rounds to Scale fractional digits, half up.
// decimal.Round is round-half-away-from-zero, which for the non-negative
// quantities the ledger stores is exactly round-half-up (0.00005 -> 0.0001).
func RoundQuantity(d Quantity) Quantity {
	return d.Round(Scale)
}

// FormatQuantity renders a quantity with exactly Scale fractional digits.
func FormatQuantity(d Quantity) string {
	return d.StringFixed(Scale)
}
