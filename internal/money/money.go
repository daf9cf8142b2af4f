// Package money holds the discount and tax arithmetic shared by the POS packages.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType tells how a discount value is interpreted.
type DiscountType string

const (
	// DiscountFlat is an absolute currency amount.
	DiscountFlat DiscountType = "flat"
	// DiscountPercentage is a percent of the amount it applies to.
	DiscountPercentage DiscountType = "percentage"
)

// TaxType tells whether prices already include tax.
type TaxType string

const (
	// TaxExclusive adds tax on top of the amount.
	TaxExclusive TaxType = "exclusive"
	// TaxInclusive treats the amount as already containing tax.
	TaxInclusive TaxType = "inclusive"
)

// DivisionPrecision is the number of fractional digits kept on division.
const DivisionPrecision = 16

// ErrUnknownType is returned when a discount or tax type cannot be parsed.
var ErrUnknownType = errors.New("money: unknown type")

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// TaxResult splits an amount into its net and tax parts.
type TaxResult struct {
	Net decimal.Decimal
	Tax decimal.Decimal
}

// CalculateDiscount resolves a discount value against subtotal. Flat values are
// returned unchanged and are not clamped; percentage results are not rounded.
func CalculateDiscount(subtotal, value decimal.Decimal, t DiscountType) decimal.Decimal {
	if t == DiscountPercentage {
		return subtotal.Mul(value).Div(hundred)
	}
	return value
}

// CalculateTax computes the tax carried by amount at rate percent.
func CalculateTax(amount, rate decimal.Decimal, t TaxType) TaxResult {
	if rate.IsZero() {
		return TaxResult{Net: amount, Tax: decimal.Zero}
	}
	if t == TaxInclusive {
		divisor := one.Add(rate.Div(hundred))
		net := amount.DivRound(divisor, DivisionPrecision)
		return TaxResult{Net: net, Tax: amount.Sub(net)}
	}
	return TaxResult{Net: amount, Tax: amount.Mul(rate).Div(hundred)}
}

// Round rounds to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ParseDiscountType validates a discount type coming from outside the core.
func ParseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(strings.ToLower(strings.TrimSpace(s))) {
	case DiscountFlat:
		return DiscountFlat, nil
	case DiscountPercentage:
		return DiscountPercentage, nil
	}
	return "", fmt.Errorf("%w: discount %q", ErrUnknownType, s)
}

// ParseTaxType validates a tax type. An empty string means exclusive.
func ParseTaxType(s string) (TaxType, error) {
	switch TaxType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TaxExclusive:
		return TaxExclusive, nil
	case TaxInclusive:
		return TaxInclusive, nil
	}
	return "", fmt.Errorf("%w: tax %q", ErrUnknownType, s)
}
