package checkout

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
)

func TestReceiptAmountUsesLocaleGrouping(t *testing.T) {
	assert.Equal(t, "USD 1,234.50", NewReceiptFormatter("en-US", "usd").Amount(dec("1234.5")))
	assert.Equal(t, "1.234,50", NewReceiptFormatter("de", "").Amount(dec("1234.5")))
	assert.Equal(t, "7.00", NewReceiptFormatter("not a locale", "").Amount(dec("7")))
	assert.Equal(t, "-1,234.50", NewReceiptFormatter("en", "").Amount(dec("-1234.5")))
}

func TestReceiptAmountRoundsDecimalValue(t *testing.T) {
	en := NewReceiptFormatter("en", "")
	assert.Equal(t, "0.13", en.Amount(dec("0.125")))
	assert.Equal(t, "2.68", en.Amount(dec("2.675")))
	assert.Equal(t, "1,234,567,890,123,456.79", en.Amount(dec("1234567890123456.785")))
	assert.Equal(t, "0,13", NewReceiptFormatter("de", "").Amount(dec("0.125")))
}

func TestReceiptFormat(t *testing.T) {
	f := NewReceiptFormatter("en", "")
	order := Order{
		Number:    "POS-20250314-ABCDEF12",
		CreatedAt: time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		Lines: []OrderLine{
			{Name: "Coffee (cup)", UnitPrice: dec("3.5"), Quantity: 2, Discount: dec("1"), Total: dec("6")},
		},
		Totals:        cart.Totals{Subtotal: dec("7"), TotalDiscount: dec("1"), Tax: dec("0"), GrandTotal: dec("6")},
		Tendered:      dec("5"),
		Paid:          dec("5"),
		Change:        dec("0"),
		PaymentStatus: PaymentPartiallyPaid,
	}

	out := f.Format(order)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Equal(t, "POS-20250314-ABCDEF12", lines[0])
	require.Equal(t, "2025-03-14 10:30", lines[1])
	assert.Contains(t, out, "  2 x 3.50")
	assert.Contains(t, out, "-1.00")
	assert.Contains(t, out, "PARTIALLY PAID")
	assert.NotContains(t, out, "Points earned")
	for _, l := range lines[3:] {
		if strings.HasPrefix(l, "-") || !strings.Contains(l, " ") || l == "Coffee (cup)" {
			continue
		}
		assert.Len(t, []rune(l), 40, l)
	}
}
