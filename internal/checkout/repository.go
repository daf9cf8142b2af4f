package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/money"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the order header and its lines in one transaction.
func (r *Repository) Insert(ctx context.Context, o Order) error {
	discount, err := json.Marshal(o.CartDiscount)
	if err != nil {
		return err
	}
	coupons, err := json.Marshal(o.Coupons)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO pos_orders (
	id, number, register_id, customer_id, tax_type, cart_discount, coupons,
	subtotal, line_discount, cart_discount_total, coupon_discount, total_discount, tax, grand_total,
	tendered, paid, change_due, payment_status, loyalty_points, created_by, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			o.ID, o.Number, o.RegisterID, o.CustomerID, string(o.TaxType), discount, coupons,
			db.Numeric(o.Totals.Subtotal), db.Numeric(o.Totals.LineDiscount), db.Numeric(o.Totals.CartDiscount),
			db.Numeric(o.Totals.CouponDiscount), db.Numeric(o.Totals.TotalDiscount),
			db.Numeric(o.Totals.Tax), db.Numeric(o.Totals.GrandTotal),
			db.Numeric(o.Tendered), db.Numeric(o.Paid), db.Numeric(o.Change), string(o.PaymentStatus),
			o.LoyaltyPoints, o.CreatedBy, o.CreatedAt)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, l := range o.Lines {
			deductions, err := json.Marshal(l.Deductions)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO pos_order_lines (
	order_id, line_no, product_id, unit_id, name, unit_price, quantity, discount, tax_rate, tax, total, deductions
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				o.ID, i+1, l.ProductID, l.UnitID, l.Name, db.Numeric(l.UnitPrice), l.Quantity,
				db.Numeric(l.Discount), db.Numeric(l.TaxRate), db.Numeric(l.Tax), db.Numeric(l.Total), deductions)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SetLoyaltyPoints stores the points accrued by the order.
func (r *Repository) SetLoyaltyPoints(ctx context.Context, id uuid.UUID, points int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE pos_orders SET loyalty_points = $2 WHERE id = $1`, id, points)
	return err
}

// Get loads an order with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	var (
		o                            Order
		customerID                   pgtype.Int8
		taxType, status              string
		discount, coupons            []byte
		subtotal, lineDiscount, tax  pgtype.Numeric
		cartDiscount, couponDiscount pgtype.Numeric
		totalDiscount, grandTotal    pgtype.Numeric
		tendered, paid, change       pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, register_id, customer_id, tax_type, cart_discount, coupons,
	subtotal, line_discount, cart_discount_total, coupon_discount, total_discount, tax, grand_total,
	tendered, paid, change_due, payment_status, loyalty_points, created_by, created_at
FROM pos_orders WHERE id = $1`, id).Scan(
		&o.ID, &o.Number, &o.RegisterID, &customerID, &taxType, &discount, &coupons,
		&subtotal, &lineDiscount, &cartDiscount, &couponDiscount, &totalDiscount, &tax, &grandTotal,
		&tendered, &paid, &change, &status, &o.LoyaltyPoints, &o.CreatedBy, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if customerID.Valid {
		cid := customerID.Int64
		o.CustomerID = &cid
	}
	o.TaxType = money.TaxType(taxType)
	o.PaymentStatus = PaymentStatus(status)
	if len(discount) > 0 {
		if err := json.Unmarshal(discount, &o.CartDiscount); err != nil {
			return Order{}, fmt.Errorf("checkout: decode cart discount: %w", err)
		}
	}
	o.Coupons = []cart.AppliedCoupon{}
	if len(coupons) > 0 {
		if err := json.Unmarshal(coupons, &o.Coupons); err != nil {
			return Order{}, fmt.Errorf("checkout: decode coupons: %w", err)
		}
	}
	o.Totals = cart.Totals{
		Subtotal:       db.Decimal(subtotal),
		LineDiscount:   db.Decimal(lineDiscount),
		CartDiscount:   db.Decimal(cartDiscount),
		CouponDiscount: db.Decimal(couponDiscount),
		TotalDiscount:  db.Decimal(totalDiscount),
		Tax:            db.Decimal(tax),
		GrandTotal:     db.Decimal(grandTotal),
	}
	o.Tendered = db.Decimal(tendered)
	o.Paid = db.Decimal(paid)
	o.Change = db.Decimal(change)

	lines, err := r.lines(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines
	return o, nil
}

func (r *Repository) lines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, unit_id, name, unit_price, quantity, discount, tax_rate, tax, total, deductions
FROM pos_order_lines WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var (
			l                                 OrderLine
			price, discount, rate, tax, total pgtype.Numeric
			deductions                        []byte
		)
		if err := rows.Scan(&l.ProductID, &l.UnitID, &l.Name, &price, &l.Quantity, &discount, &rate, &tax, &total, &deductions); err != nil {
			return nil, err
		}
		l.UnitPrice = db.Decimal(price)
		l.Discount = db.Decimal(discount)
		l.TaxRate = db.Decimal(rate)
		l.Tax = db.Decimal(tax)
		l.Total = db.Decimal(total)
		l.Deductions = []inventory.Deduction{}
		if len(deductions) > 0 {
			if err := json.Unmarshal(deductions, &l.Deductions); err != nil {
				return nil, fmt.Errorf("checkout: decode deductions: %w", err)
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
