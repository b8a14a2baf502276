// Package money provides fixed-point decimal arithmetic for financial amounts.
//
// All amounts in the system are decimals with 2 fraction digits, rounded half
// away from zero. Binary floats are never used for money; persistence and wire
// formats carry decimal strings.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the discrepancy threshold for cash counts. Differences at or
// below one cent absorb rounding noise from upstream currency-conversion
// display rounding and do not count as discrepancies.
var Tolerance = decimal.New(1, -2) // 0.01

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// Parse parses a decimal amount string, rounding to 2 fraction digits.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse parses a decimal amount string and panics on failure.
// Only for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round rounds to 2 fraction digits, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders an amount as a fixed 2-digit decimal string.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WithinTolerance reports whether a signed difference is inside the
// discrepancy threshold.
func WithinTolerance(diff decimal.Decimal) bool {
	return diff.Abs().Cmp(Tolerance) <= 0
}
