package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// Product is the price snapshot taken when a product is rung up.
type Product struct {
	ID        int64           `json:"id"`
	UnitID    int64           `json:"unit_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

// Line is one product line in an open cart.
type Line struct {
	ID            uuid.UUID          `json:"id"`
	ProductID     int64              `json:"product_id"`
	UnitID        int64              `json:"unit_id"`
	Name          string             `json:"name"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	Quantity      int                `json:"quantity"`
	Discount      decimal.Decimal    `json:"discount"`
	DiscountType  money.DiscountType `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	TaxRate       decimal.Decimal    `json:"tax_rate"`
}

// Gross is unit price times quantity.
func (l Line) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Net is the gross amount after the line discount.
func (l Line) Net() decimal.Decimal {
	return l.Gross().Sub(l.Discount)
}

// Tax is the tax carried by the line's post-discount amount.
func (l Line) Tax(taxType money.TaxType) decimal.Decimal {
	return money.CalculateTax(l.Net(), l.TaxRate, taxType).Tax
}

// Total is the line amount the customer pays, tax included.
func (l Line) Total(taxType money.TaxType) decimal.Decimal {
	if taxType == money.TaxInclusive {
		return money.Round(l.Net())
	}
	return money.Round(l.Net().Add(l.Tax(taxType)))
}

// Adjustment is a resolved cart-level discount.
type Adjustment struct {
	Type   money.DiscountType `json:"type"`
	Value  decimal.Decimal    `json:"value"`
	Amount decimal.Decimal    `json:"amount"`
}

// Coupon is a read-only discount definition looked up by code.
type Coupon struct {
	ID               int64              `json:"id"`
	Code             string             `json:"code"`
	DiscountType     money.DiscountType `json:"discount_type"`
	DiscountValue    decimal.Decimal    `json:"discount_value"`
	MinimumCartValue *decimal.Decimal   `json:"minimum_cart_value,omitempty"`
	MaxDiscount      *decimal.Decimal   `json:"max_discount,omitempty"`
	Active           bool               `json:"active"`
}

// AppliedCoupon records the amount a coupon resolved to when it was applied.
type AppliedCoupon struct {
	Coupon    Coupon          `json:"coupon"`
	Amount    decimal.Decimal `json:"amount"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Totals are the derived cart amounts, rounded to cents.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	LineDiscount   decimal.Decimal `json:"line_discount"`
	CartDiscount   decimal.Decimal `json:"cart_discount"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	TotalDiscount  decimal.Decimal `json:"total_discount"`
	Tax            decimal.Decimal `json:"tax"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
}

var (
	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = errors.New("cart: unit price must be >= 0")
	// ErrInvalidDiscount indicates a negative discount value.
	ErrInvalidDiscount = errors.New("cart: discount must be >= 0")
	// ErrLineNotFound indicates an unknown line id.
	ErrLineNotFound = errors.New("cart: line not found")
	// ErrCouponAlreadyApplied indicates the coupon is already on the cart.
	ErrCouponAlreadyApplied = errors.New("cart: coupon already applied")
	// ErrMinimumNotMet indicates the subtotal is below the coupon minimum.
	ErrMinimumNotMet = errors.New("cart: coupon minimum cart value not met")
	// ErrCouponInactive indicates a disabled coupon.
	ErrCouponInactive = errors.New("cart: coupon inactive")
	// ErrCouponNotApplied indicates removal of a coupon that is not on the cart.
	ErrCouponNotApplied = errors.New("cart: coupon not applied")
	// ErrCouponNotFound indicates an unknown coupon code.
	ErrCouponNotFound = errors.New("cart: coupon not found")
	// ErrEmptyCart indicates an operation that needs at least one line.
	ErrEmptyCart = errors.New("cart: cart is empty")
	// ErrCartNotEmpty prevents resuming a held cart over an active one.
	ErrCartNotEmpty = errors.New("cart: active cart is not empty")
	// ErrHeldCartNotFound indicates an unknown held cart id.
	ErrHeldCartNotFound = errors.New("cart: held cart not found")
)
