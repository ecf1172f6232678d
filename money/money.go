// Package money is fixed-point currency arithmetic over shopspring/decimal.
// Rounding is half-up (away from zero at .5), which is what decimal.Round does.
package money

import (
	"strings"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/shopspring/decimal"
)

const (
	DisplayPlaces  int32 = 2
	UnitCostPlaces int32 = 4
)

var hundred = decimal.NewFromInt(100)

func Quantize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(UnitCostPlaces)
}

func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b)
}

func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}

// MulQty is price × an integer quantity, exact.
func MulQty(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// ToMinorUnits rounds to cents and returns the integer amount.
func ToMinorUnits(d decimal.Decimal) int64 {
	return Round2(d).Mul(hundred).IntPart()
}

func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -DisplayPlaces)
}

// TipPercentToCents converts a tip percentage of subtotal to cents.
// Negative percentages count as zero.
func TipPercentToCents(subtotal decimal.Decimal, percent decimal.Decimal) int64 {
	if percent.IsNegative() || subtotal.IsNegative() {
		return 0
	}
	return ToMinorUnits(subtotal.Mul(percent).Div(hundred))
}

// Parse reads a user-entered amount. Thousands separators and a leading
// "$" or "USD" are accepted; anything else non-numeric is a validation error.
func Parse(field, raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	switch {
	case strings.HasPrefix(s, "$"):
		s = s[1:]
	case len(s) >= 3 && strings.EqualFold(s[:3], "usd"):
		s = s[3:]
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, apperr.NewValidation(field, "is required")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, apperr.NewValidation(field, "%q is not a number", raw)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.NewValidation(field, "%q is not a number", raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func ParseNonNegative(field, raw string) (decimal.Decimal, error) {
	d, err := Parse(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, apperr.NewValidation(field, "must be zero or greater")
	}
	return d, nil
}
