// Package money formats ledger amounts. Amounts are int64 minor units end to end;
// decimals appear only at the API edge.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

var minorExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"XOF": 0,
	"XAF": 0,
	"BHD": 3,
	"KWD": 3,
}

// Exponent returns the number of minor-unit digits of an ISO 4217 currency.
func Exponent(currency string) int32 {
	if exp, ok := minorExponent[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// Decimal converts minor units to a major-unit decimal.
func Decimal(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Format renders minor units as a fixed-point string, e.g. 1850 USD -> "18.50".
func Format(minor int64, currency string) string {
	return Decimal(minor, currency).StringFixed(Exponent(currency))
}

// ParseMinor converts a major-unit string ("18.50") into minor units. Values with
// more precision than the currency allows are rejected.
func ParseMinor(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	exp := Exponent(currency)
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", value, exp)
	}
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q is not representable", value)
	}
	if scaled.GreaterThan(maxMinor) || scaled.LessThan(minMinor) {
		return 0, fmt.Errorf("amount %q is out of range", value)
	}
	return scaled.IntPart(), nil
}

// Amount is the JSON shape used for money in API responses.
type Amount struct {
	Minor    int64  `json:"minor"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
}

func NewAmount(minor int64, currency string) Amount {
	return Amount{Minor: minor, Display: Format(minor, currency), Currency: strings.ToUpper(currency)}
}
