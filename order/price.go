package order

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	maxPrice = decimal.NewFromInt(math.MaxInt64)
	hundred  = decimal.NewFromInt(100)
	one      = decimal.NewFromInt(1)
)

// PriceFromParts builds a price in minimal units from an integer part and a
// fractional part expressed with precision digits, e.g. (10, 25, 2) is 10.25.
func PriceFromParts(integer, fractional uint64, precision int32) (int64, error) {
	if precision < 0 {
		return 0, fmt.Errorf("precision %d must be >= 0", precision)
	}
	if integer > math.MaxInt64 || fractional > math.MaxInt64 {
		return 0, fmt.Errorf("price %d.%d out of range", integer, fractional)
	}
	scale := decimal.New(1, precision)
	frac := decimal.NewFromInt(int64(fractional))
	if !frac.LessThan(scale) {
		return 0, fmt.Errorf("fractional part %d exceeds precision %d", fractional, precision)
	}
	units := decimal.NewFromInt(int64(integer)).Mul(scale).Add(frac)
	if units.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("price %d.%d out of range", integer, fractional)
	}
	return units.IntPart(), nil
}

// ParsePrice converts a decimal string such as "101.25" to minimal units.
func ParsePrice(s string, precision int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	units := d.Shift(precision)
	if !units.IsInteger() {
		return 0, fmt.Errorf("price %q has more than %d decimal places", s, precision)
	}
	if units.Abs().GreaterThan(maxPrice) {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return units.IntPart(), nil
}

// FormatPrice renders minimal units with precision decimal places.
func FormatPrice(units int64, precision int32) string {
	if precision <= 0 {
		return decimal.NewFromInt(units).String()
	}
	return decimal.New(units, -precision).StringFixed(precision)
}

// TrailStop derives the stop price that trails ref by pct percent. Sell
// stops sit below the reference and round down; buy stops sit above and
// round up, so the stop is never tighter than requested.
func TrailStop(side Side, ref int64, pct decimal.Decimal, c Constraints) int64 {
	offset := pct.Div(hundred)
	r := decimal.NewFromInt(ref)
	if side == Sell {
		return c.RoundDown(r.Mul(one.Sub(offset)).Floor().IntPart())
	}
	return c.RoundUp(r.Mul(one.Add(offset)).Ceil().IntPart())
}
