package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/checkout"
	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

func largeCart(tb testing.TB, lines int) *cart.Cart {
	tb.Helper()
	c := cart.New(money.TaxInclusive)
	for i := 0; i < lines; i++ {
		line, err := c.AddLine(cart.Product{
			ID:        int64(i + 1),
			UnitID:    1,
			Name:      fmt.Sprintf("Item %03d", i+1),
			UnitPrice: decimal.NewFromInt(int64(1000 + i*250)),
			TaxRate:   decimal.NewFromInt(11),
		}, 1+i%4)
		if err != nil {
			tb.Fatalf("add line: %v", err)
		}
		if i%5 == 0 {
			if _, err := c.ApplyLineDiscount(line.ID, money.DiscountPercentage, decimal.NewFromInt(5)); err != nil {
				tb.Fatalf("line discount: %v", err)
			}
		}
	}
	if _, err := c.ApplyCartDiscount(money.DiscountFlat, decimal.NewFromInt(2500)); err != nil {
		tb.Fatalf("cart discount: %v", err)
	}
	return c
}

func TestCartTotalsLatencyTarget(t *testing.T) {
	c := largeCart(t, 200)
	samples := make([]time.Duration, 0, 50)
	for i := 0; i < 50; i++ {
		start := time.Now()
		_ = c.Totals()
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("cart totals latency regression: p95=%s threshold=50ms", p95)
	}
}

func BenchmarkCartTotals(b *testing.B) {
	c := largeCart(b, 50)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Totals()
	}
}

func BenchmarkReceiptFormat(b *testing.B) {
	c := largeCart(b, 50)
	order := checkout.Order{
		ID:            uuid.New(),
		Number:        "POS-20250101-BENCH001",
		TaxType:       c.TaxType,
		Totals:        c.Totals(),
		PaymentStatus: checkout.PaymentPaid,
		CreatedAt:     time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, l := range c.Lines {
		order.Lines = append(order.Lines, checkout.OrderLine{
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Discount:  l.Discount,
			Total:     l.Total(c.TaxType),
		})
	}
	order.Tendered = order.Totals.GrandTotal
	formatter := checkout.NewReceiptFormatter("id", "IDR")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = formatter.Format(order)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
