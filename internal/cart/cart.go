// Package cart prices an open POS cart: lines, line and cart discounts, stacked
// coupons and per-line tax. A Cart belongs to exactly one POS session and does no I/O.
package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// Cart is the in-memory cart aggregate. Every mutating method either succeeds
// completely or leaves the cart untouched.
type Cart struct {
	Lines    []Line          `json:"lines"`
	Discount *Adjustment     `json:"discount,omitempty"`
	Coupons  []AppliedCoupon `json:"coupons"`
	TaxType  money.TaxType   `json:"tax_type"`
}

// New returns an empty cart using taxType for every line.
func New(taxType money.TaxType) *Cart {
	if taxType == "" {
		taxType = money.TaxExclusive
	}
	return &Cart{TaxType: taxType}
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// AddLine appends a new line for product. Adding the same product twice
// yields two lines; quantities are not merged.
func (c *Cart) AddLine(product Product, quantity int) (Line, error) {
	if quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}
	if product.UnitPrice.IsNegative() {
		return Line{}, ErrInvalidPrice
	}
	if product.TaxRate.IsNegative() {
		return Line{}, fmt.Errorf("cart: tax rate must be >= 0")
	}
	line := Line{
		ID:        uuid.New(),
		ProductID: product.ID,
		UnitID:    product.UnitID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  quantity,
		Discount:  decimal.Zero,
		TaxRate:   product.TaxRate,
	}
	c.Lines = append(c.Lines, line)
	c.reprice()
	return line, nil
}

// UpdateQuantity changes a line's quantity and re-resolves its discount
// against the new gross amount. The cart discount and coupons are
// re-checked against the new subtotal.
func (c *Cart) UpdateQuantity(lineID uuid.UUID, quantity int) (Line, error) {
	if quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	line := c.Lines[idx]
	line.Quantity = quantity
	line.Discount = resolveLineDiscount(line)
	c.Lines[idx] = line
	c.reprice()
	return line, nil
}

// RemoveLine deletes a line. Coupons whose minimum the remaining lines no
// longer meet are dropped.
func (c *Cart) RemoveLine(lineID uuid.UUID) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	c.reprice()
	return nil
}

// ApplyLineDiscount resolves value against the line gross and stores the
// absolute amount, clamped to the gross.
func (c *Cart) ApplyLineDiscount(lineID uuid.UUID, t money.DiscountType, value decimal.Decimal) (Line, error) {
	if value.IsNegative() {
		return Line{}, ErrInvalidDiscount
	}
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	line := c.Lines[idx]
	line.DiscountType = t
	line.DiscountValue = value
	line.Discount = resolveLineDiscount(line)
	c.Lines[idx] = line
	c.reprice()
	return line, nil
}

// ApplyCartDiscount resolves a cart-level discount against the current
// subtotal. It replaces any earlier cart discount.
func (c *Cart) ApplyCartDiscount(t money.DiscountType, value decimal.Decimal) (Adjustment, error) {
	if value.IsNegative() {
		return Adjustment{}, ErrInvalidDiscount
	}
	adj := resolveCartDiscount(t, value, c.subtotal())
	c.Discount = &adj
	return adj, nil
}

// ClearCartDiscount drops the cart-level discount.
func (c *Cart) ClearCartDiscount() {
	c.Discount = nil
}

// ApplyCoupon resolves coupon against the current subtotal and stacks it on
// the cart. The amount is fixed at apply time and capped by MaxDiscount.
func (c *Cart) ApplyCoupon(coupon Coupon) (AppliedCoupon, error) {
	if !coupon.Active {
		return AppliedCoupon{}, ErrCouponInactive
	}
	for _, applied := range c.Coupons {
		if applied.Coupon.ID == coupon.ID {
			return AppliedCoupon{}, ErrCouponAlreadyApplied
		}
	}
	if coupon.DiscountValue.IsNegative() {
		return AppliedCoupon{}, ErrInvalidDiscount
	}
	subtotal := c.subtotal()
	if coupon.MinimumCartValue != nil && subtotal.LessThan(*coupon.MinimumCartValue) {
		return AppliedCoupon{}, ErrMinimumNotMet
	}
	amount := money.CalculateDiscount(subtotal, coupon.DiscountValue, coupon.DiscountType)
	if coupon.MaxDiscount != nil {
		amount = money.Min(amount, *coupon.MaxDiscount)
	}
	amount = money.Max(amount, decimal.Zero)
	applied := AppliedCoupon{Coupon: coupon, Amount: amount, AppliedAt: time.Now().UTC()}
	c.Coupons = append(c.Coupons, applied)
	return applied, nil
}

// RemoveCoupon takes a coupon off the cart.
func (c *Cart) RemoveCoupon(couponID int64) error {
	for i, applied := range c.Coupons {
		if applied.Coupon.ID == couponID {
			c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
			return nil
		}
	}
	return ErrCouponNotApplied
}

// Clear empties the cart, keeping its tax policy.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Discount = nil
	c.Coupons = nil
}

// Line returns the line with the given id.
func (c *Cart) Line(lineID uuid.UUID) (Line, bool) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Line{}, false
	}
	return c.Lines[idx], true
}

// Totals derives subtotal, discounts, tax and grand total. Components are
// rounded to cents first and the grand total is derived from the rounded
// values, so subtotal - total discount + tax always equals the grand total.
func (c *Cart) Totals() Totals {
	subtotal := decimal.Zero
	lineDiscount := decimal.Zero
	tax := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.Net())
		lineDiscount = lineDiscount.Add(line.Discount)
		tax = tax.Add(line.Tax(c.TaxType))
	}

	subtotal = money.Round(subtotal)
	tax = money.Round(tax)

	cartDiscount := decimal.Zero
	if c.Discount != nil {
		cartDiscount = money.Round(c.Discount.Amount)
	}
	couponDiscount := decimal.Zero
	for _, applied := range c.Coupons {
		couponDiscount = couponDiscount.Add(money.Round(applied.Amount))
	}
	totalDiscount := money.Min(cartDiscount.Add(couponDiscount), subtotal)

	grand := subtotal.Sub(totalDiscount)
	if c.TaxType != money.TaxInclusive {
		grand = grand.Add(tax)
	}

	return Totals{
		Subtotal:       subtotal,
		LineDiscount:   money.Round(lineDiscount),
		CartDiscount:   cartDiscount,
		CouponDiscount: couponDiscount,
		TotalDiscount:  totalDiscount,
		Tax:            tax,
		GrandTotal:     money.Max(grand, decimal.Zero),
	}
}

// reprice re-resolves the cart discount against the current subtotal and
// drops coupons whose minimum cart value is no longer met. Coupon amounts
// stay as resolved at apply time.
func (c *Cart) reprice() {
	subtotal := c.subtotal()
	if c.Discount != nil {
		adj := resolveCartDiscount(c.Discount.Type, c.Discount.Value, subtotal)
		c.Discount = &adj
	}
	kept := c.Coupons[:0]
	for _, applied := range c.Coupons {
		if minimum := applied.Coupon.MinimumCartValue; minimum != nil && subtotal.LessThan(*minimum) {
			continue
		}
		kept = append(kept, applied)
	}
	if len(kept) == 0 {
		kept = nil
	}
	c.Coupons = kept
}

func resolveCartDiscount(t money.DiscountType, value, subtotal decimal.Decimal) Adjustment {
	amount := money.Clamp(money.CalculateDiscount(subtotal, value, t), decimal.Zero, subtotal)
	return Adjustment{Type: t, Value: value, Amount: amount}
}

func (c *Cart) subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.Net())
	}
	return subtotal
}

func (c *Cart) indexOf(lineID uuid.UUID) int {
	for i, line := range c.Lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

func resolveLineDiscount(line Line) decimal.Decimal {
	if line.DiscountType == "" {
		return decimal.Zero
	}
	gross := line.Gross()
	return money.Clamp(money.CalculateDiscount(gross, line.DiscountValue, line.DiscountType), decimal.Zero, gross)
}
