package checkout

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// PaymentStatus tells how much of the grand total was tendered.
type PaymentStatus string

const (
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentUnpaid        PaymentStatus = "unpaid"
)

// Order is the persisted record of a completed checkout.
type Order struct {
	ID            uuid.UUID            `json:"id"`
	Number        string               `json:"number"`
	RegisterID    int64                `json:"register_id"`
	CustomerID    *int64               `json:"customer_id,omitempty"`
	TaxType       money.TaxType        `json:"tax_type"`
	Lines         []OrderLine          `json:"lines"`
	CartDiscount  *cart.Adjustment     `json:"cart_discount,omitempty"`
	Coupons       []cart.AppliedCoupon `json:"coupons"`
	Totals        cart.Totals          `json:"totals"`
	Tendered      decimal.Decimal      `json:"tendered"`
	Paid          decimal.Decimal      `json:"paid"`
	Change        decimal.Decimal      `json:"change"`
	PaymentStatus PaymentStatus        `json:"payment_status"`
	LoyaltyPoints int64                `json:"loyalty_points"`
	CreatedBy     int64                `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
}

// OrderLine snapshots a sold cart line with the batches it came from.
type OrderLine struct {
	ProductID  int64                 `json:"product_id"`
	UnitID     int64                 `json:"unit_id"`
	Name       string                `json:"name"`
	UnitPrice  decimal.Decimal       `json:"unit_price"`
	Quantity   int                   `json:"quantity"`
	Discount   decimal.Decimal       `json:"discount"`
	TaxRate    decimal.Decimal       `json:"tax_rate"`
	Tax        decimal.Decimal       `json:"tax"`
	Total      decimal.Decimal       `json:"total"`
	Deductions []inventory.Deduction `json:"deductions"`
}

// Input is one checkout request.
type Input struct {
	Cart           *cart.Cart
	RegisterID     int64
	Tendered       decimal.Decimal
	CustomerID     *int64
	CashierID      int64
	IdempotencyKey string
}

// Result is a completed checkout with its printable receipt.
type Result struct {
	Order   Order  `json:"order"`
	Receipt string `json:"receipt"`
}

var (
	// ErrEmptyCart indicates a checkout without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidTender indicates a negative tendered amount.
	ErrInvalidTender = errors.New("checkout: tendered amount must be >= 0")
	// ErrOrderNotFound indicates missing order row.
	ErrOrderNotFound = errors.New("checkout: order not found")
	// ErrDuplicateCheckout indicates a replayed idempotency key.
	ErrDuplicateCheckout = errors.New("checkout: duplicate request")
)

// settle derives the paid amount, change and status from the tender.
func settle(grandTotal, tendered decimal.Decimal) (paid, change decimal.Decimal, status PaymentStatus) {
	paid = money.Min(tendered, grandTotal)
	change = money.Max(decimal.Zero, tendered.Sub(grandTotal))
	switch {
	case tendered.GreaterThanOrEqual(grandTotal):
		status = PaymentPaid
	case tendered.IsZero():
		status = PaymentUnpaid
	default:
		status = PaymentPartiallyPaid
	}
	return paid, change, status
}
