package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/register"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// StockPort is the part of the batch ledger checkout drives.
type StockPort interface {
	DeductLinesFEFO(ctx context.Context, reqs []inventory.DeductRequest) ([]inventory.LineDeduction, error)
	RestoreDeductions(ctx context.Context, deductions []inventory.Deduction) error
}

// RegisterPort is the part of the register ledger checkout drives.
type RegisterPort interface {
	EnsureOpen(ctx context.Context, registerID int64) error
	RecordSale(ctx context.Context, registerID int64, orderID uuid.UUID, amount decimal.Decimal, author int64) (register.Movement, error)
	CashOut(ctx context.Context, registerID int64, amount decimal.Decimal, description string, author int64) (register.Movement, error)
}

// LoyaltyPort accrues customer points.
type LoyaltyPort interface {
	Accrue(ctx context.Context, customerID int64, amount decimal.Decimal) (int64, error)
}

// IdempotencyPort guards against replayed checkout requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order Order) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	SetLoyaltyPoints(ctx context.Context, id uuid.UUID, points int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives checkout outcomes.
type MetricsPort interface {
	CheckoutCompleted(status string, grandTotal decimal.Decimal)
	CheckoutFailed(reason string)
}

// Dependencies groups the collaborators of Service. Loyalty, Idempotency,
// Audit and Metrics are optional.
type Dependencies struct {
	Stock       StockPort
	Registers   RegisterPort
	Orders      OrderRepository
	Loyalty     LoyaltyPort
	Idempotency IdempotencyPort
	Audit       AuditPort
	Metrics     MetricsPort
	Receipts    *ReceiptFormatter
	Logger      *slog.Logger
}

// Service finalises carts into orders.
type Service struct {
	deps Dependencies
	now  func() time.Time
}

// NewService builds Service.
func NewService(deps Dependencies) *Service {
	if deps.Receipts == nil {
		deps.Receipts = NewReceiptFormatter("en", "")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps, now: time.Now}
}

const idempotencyModule = "pos_checkout"

// Checkout deducts stock for every line, books the paid amount into the
// register and records the order. Stock is either deducted for all lines or
// for none; a failure after deduction restores it.
func (s *Service) Checkout(ctx context.Context, in Input) (Result, error) {
	if in.Cart == nil || in.Cart.IsEmpty() {
		return Result{}, ErrEmptyCart
	}
	if in.Tendered.IsNegative() {
		return Result{}, ErrInvalidTender
	}
	if err := s.deps.Registers.EnsureOpen(ctx, in.RegisterID); err != nil {
		s.failed("register")
		return Result{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Result{}, fmt.Errorf("%w: %w", ErrDuplicateCheckout, err)
			}
			return Result{}, err
		}
	}
	result, err := s.checkout(ctx, in)
	if err != nil && key != "" && s.deps.Idempotency != nil {
		if derr := s.deps.Idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.deps.Logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
		}
	}
	return result, err
}

func (s *Service) checkout(ctx context.Context, in Input) (Result, error) {
	totals := in.Cart.Totals()
	reqs := make([]inventory.DeductRequest, 0, len(in.Cart.Lines))
	for _, l := range in.Cart.Lines {
		reqs = append(reqs, inventory.DeductRequest{ProductID: l.ProductID, UnitID: l.UnitID, Quantity: int64(l.Quantity)})
	}
	lines, err := s.deps.Stock.DeductLinesFEFO(ctx, reqs)
	if err != nil {
		s.failed("stock")
		return Result{}, err
	}

	now := s.now().UTC()
	order := Order{
		ID:           uuid.New(),
		RegisterID:   in.RegisterID,
		CustomerID:   in.CustomerID,
		TaxType:      in.Cart.TaxType,
		CartDiscount: in.Cart.Discount,
		Coupons:      in.Cart.Coupons,
		Totals:       totals,
		Tendered:     in.Tendered,
		CreatedBy:    in.CashierID,
		CreatedAt:    now,
	}
	order.Number = orderNumber(order.ID, now)
	order.Paid, order.Change, order.PaymentStatus = settle(totals.GrandTotal, in.Tendered)
	if order.Coupons == nil {
		order.Coupons = []cart.AppliedCoupon{}
	}
	var deducted []inventory.Deduction
	for i, l := range in.Cart.Lines {
		order.Lines = append(order.Lines, OrderLine{
			ProductID:  l.ProductID,
			UnitID:     l.UnitID,
			Name:       l.Name,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.Quantity,
			Discount:   l.Discount,
			TaxRate:    l.TaxRate,
			Tax:        l.Tax(in.Cart.TaxType).Round(2),
			Total:      l.Total(in.Cart.TaxType),
			Deductions: lines[i].Deductions,
		})
		deducted = append(deducted, lines[i].Deductions...)
	}

	if order.Paid.IsPositive() {
		if _, err := s.deps.Registers.RecordSale(ctx, in.RegisterID, order.ID, order.Paid, in.CashierID); err != nil {
			s.restore(ctx, deducted)
			s.failed("payment")
			return Result{}, err
		}
	}

	if err := s.deps.Orders.Insert(ctx, order); err != nil {
		s.restore(ctx, deducted)
		if order.Paid.IsPositive() {
			if _, rerr := s.deps.Registers.CashOut(context.WithoutCancel(ctx), in.RegisterID, order.Paid, "reversal of sale "+order.ID.String(), in.CashierID); rerr != nil {
				s.deps.Logger.Error("reverse sale movement", slog.String("order_id", order.ID.String()), slog.Any("error", rerr))
			}
		}
		s.failed("persist")
		return Result{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	if in.CustomerID != nil && order.PaymentStatus == PaymentPaid && s.deps.Loyalty != nil {
		points, err := s.deps.Loyalty.Accrue(ctx, *in.CustomerID, order.Paid)
		if err != nil {
			s.deps.Logger.Warn("accrue loyalty points", slog.String("order_id", order.ID.String()), slog.Any("error", err))
		}
		if points > 0 {
			if err := s.deps.Orders.SetLoyaltyPoints(ctx, order.ID, points); err != nil {
				s.deps.Logger.Warn("store loyalty points", slog.String("order_id", order.ID.String()), slog.Any("error", err))
			}
			order.LoyaltyPoints = points
		}
	}

	if s.deps.Audit != nil {
		_ = s.deps.Audit.Record(ctx, shared.AuditLog{
			ActorID:  in.CashierID,
			Action:   "pos:checkout",
			Entity:   "pos_order",
			EntityID: order.ID.String(),
			Meta: map[string]any{
				"number":         order.Number,
				"register_id":    order.RegisterID,
				"grand_total":    order.Totals.GrandTotal.String(),
				"paid":           order.Paid.String(),
				"payment_status": order.PaymentStatus,
			},
		})
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.CheckoutCompleted(string(order.PaymentStatus), order.Totals.GrandTotal)
	}
	return Result{Order: order, Receipt: s.deps.Receipts.Format(order)}, nil
}

// GetOrder returns a persisted order.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.deps.Orders.Get(ctx, id)
}

// Receipt renders the receipt of a persisted order.
func (s *Service) Receipt(order Order) string {
	return s.deps.Receipts.Format(order)
}

func (s *Service) restore(ctx context.Context, deducted []inventory.Deduction) {
	if err := s.deps.Stock.RestoreDeductions(context.WithoutCancel(ctx), deducted); err != nil {
		s.deps.Logger.Error("restore stock after failed checkout", slog.Any("error", err))
	}
}

func (s *Service) failed(reason string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.CheckoutFailed(reason)
	}
}

func orderNumber(id uuid.UUID, at time.Time) string {
	return "POS-" + at.Format("20060102") + "-" + strings.ToUpper(id.String()[:8])
}
