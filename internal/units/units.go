// Package units converts between raw integer amounts and decimal strings.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative, fractional or oversized amounts.
var ErrInvalidAmount = errors.New("invalid amount")

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// ToDecimal scales a raw amount down by 10^decimals.
func ToDecimal(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// Format renders a raw amount with exactly decimals fractional digits.
func Format(raw uint64, decimals uint8) string {
	return ToDecimal(raw, decimals).StringFixed(int32(decimals))
}

// FormatTrimmed renders a raw amount without trailing zeros.
func FormatTrimmed(raw uint64, decimals uint8) string {
	return ToDecimal(raw, decimals).String()
}

// Parse converts a decimal string into raw units at the given precision.
// "0.01" at 2 decimals is 1; "1.005" at 2 decimals fails.
func Parse(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return FromDecimal(d, decimals)
}

// FromDecimal scales d up by 10^decimals into an exact uint64.
func FromDecimal(d decimal.Decimal, decimals uint8) (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, d, decimals)
	}
	if scaled.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, d)
	}
	return scaled.BigInt().Uint64(), nil
}

// Ratio returns a/b rounded to places, or zero when b is zero.
func Ratio(a, b uint64, places int32) decimal.Decimal {
	if b == 0 {
		return decimal.Zero
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(a), 0)
	den := decimal.NewFromBigInt(new(big.Int).SetUint64(b), 0)
	return num.DivRound(den, places)
}

// Percent returns 100*a/b rounded to places, or zero when b is zero.
func Percent(a, b uint64, places int32) decimal.Decimal {
	if b == 0 {
		return decimal.Zero
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(a), 2)
	den := decimal.NewFromBigInt(new(big.Int).SetUint64(b), 0)
	return num.DivRound(den, places)
}
