package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateDiscount(t *testing.T) {
	require.True(t, CalculateDiscount(d("100"), d("10"), DiscountPercentage).Equal(d("10")))
	require.True(t, CalculateDiscount(d("100"), d("10"), DiscountFlat).Equal(d("10")))

	// pure: same inputs, same output
	first := CalculateDiscount(d("33.33"), d("12.5"), DiscountPercentage)
	second := CalculateDiscount(d("33.33"), d("12.5"), DiscountPercentage)
	require.True(t, first.Equal(second))
	require.True(t, first.Equal(d("4.166250")))
}

func TestCalculateDiscountFlatIsNotClamped(t *testing.T) {
	got := CalculateDiscount(d("5"), d("20"), DiscountFlat)
	require.True(t, got.Equal(d("20")))
}

func TestCalculateTaxInclusiveRoundTrip(t *testing.T) {
	res := CalculateTax(d("110"), d("10"), TaxInclusive)
	require.True(t, res.Net.Add(res.Tax).Equal(d("110")))
	require.True(t, Round(res.Net).Equal(d("100")))
	require.True(t, Round(res.Tax).Equal(d("10")))
}

func TestCalculateTaxExclusive(t *testing.T) {
	res := CalculateTax(d("100"), d("10"), TaxExclusive)
	require.True(t, res.Tax.Equal(d("10")))
	require.True(t, res.Net.Equal(d("100")))
}

func TestCalculateTaxZeroRate(t *testing.T) {
	for _, tt := range []TaxType{TaxInclusive, TaxExclusive} {
		res := CalculateTax(d("57.10"), decimal.Zero, tt)
		require.True(t, res.Tax.IsZero(), string(tt))
		require.True(t, res.Net.Equal(d("57.10")), string(tt))
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.True(t, Round(d("2.345")).Equal(d("2.35")))
	require.True(t, Round(d("2.344")).Equal(d("2.34")))
}

func TestClampMinMax(t *testing.T) {
	require.True(t, Clamp(d("-1"), decimal.Zero, d("10")).IsZero())
	require.True(t, Clamp(d("11"), decimal.Zero, d("10")).Equal(d("10")))
	require.True(t, Clamp(d("4"), decimal.Zero, d("10")).Equal(d("4")))
	require.True(t, Min(d("1"), d("2")).Equal(d("1")))
	require.True(t, Max(d("1"), d("2")).Equal(d("2")))
}

func TestParseTypes(t *testing.T) {
	dt, err := ParseDiscountType(" Percentage ")
	require.NoError(t, err)
	require.Equal(t, DiscountPercentage, dt)

	_, err = ParseDiscountType("bogus")
	require.ErrorIs(t, err, ErrUnknownType)

	tt, err := ParseTaxType("")
	require.NoError(t, err)
	require.Equal(t, TaxExclusive, tt)

	tt, err = ParseTaxType("inclusive")
	require.NoError(t, err)
	require.Equal(t, TaxInclusive, tt)

	_, err = ParseTaxType("vat")
	require.ErrorIs(t, err, ErrUnknownType)
}
