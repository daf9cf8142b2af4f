package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// CouponFilter narrows coupon listings.
type CouponFilter struct {
	Active *bool
	Search string
	Limit  int
}

// CouponRepository reads coupon definitions. Codes are compared upper-cased.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context, filter CouponFilter) ([]Coupon, error)
}

// CouponService is a read-through coupon lookup. Identical concurrent lookups
// share one query; nothing is cached between calls.
type CouponService struct {
	repo  CouponRepository
	group singleflight.Group
}

// NewCouponService builds CouponService.
func NewCouponService(repo CouponRepository) *CouponService {
	return &CouponService{repo: repo}
}

// NormalizeCode canonicalises a coupon code for comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FindByCode looks a coupon up by its case-insensitive code.
func (s *CouponService) FindByCode(ctx context.Context, code string) (Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Coupon{}, ErrCouponNotFound
	}
	ch := s.group.DoChan(code, func() (interface{}, error) {
		return s.repo.FindByCode(ctx, code)
	})
	select {
	case <-ctx.Done():
		return Coupon{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Coupon{}, res.Err
		}
		return res.Val.(Coupon), nil
	}
}

// List returns coupons matching filter.
func (s *CouponService) List(ctx context.Context, filter CouponFilter) ([]Coupon, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// PGCouponRepository reads coupons from PostgreSQL.
type PGCouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository constructs PGCouponRepository.
func NewCouponRepository(pool *pgxpool.Pool) *PGCouponRepository {
	return &PGCouponRepository{pool: pool}
}

const couponColumns = `id, code, discount_type, discount_value, minimum_cart_value, max_discount, active`

func (r *PGCouponRepository) FindByCode(ctx context.Context, code string) (Coupon, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE upper(code) = $1`, NormalizeCode(code))
	coupon, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	return coupon, err
}

func (r *PGCouponRepository) List(ctx context.Context, filter CouponFilter) ([]Coupon, error) {
	var active any
	if filter.Active != nil {
		active = *filter.Active
	}
	search := "%" + NormalizeCode(filter.Search) + "%"
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons
WHERE ($1::boolean IS NULL OR active = $1) AND upper(code) LIKE $2
ORDER BY code ASC
LIMIT $3`, active, search, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	coupons := []Coupon{}
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	return coupons, rows.Err()
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c            Coupon
		discountType string
		value        pgtype.Numeric
		minimum      pgtype.Numeric
		maxDiscount  pgtype.Numeric
	)
	if err := row.Scan(&c.ID, &c.Code, &discountType, &value, &minimum, &maxDiscount, &c.Active); err != nil {
		return Coupon{}, err
	}
	t, err := money.ParseDiscountType(discountType)
	if err != nil {
		return Coupon{}, fmt.Errorf("cart: coupon %d: %w", c.ID, err)
	}
	c.DiscountType = t
	c.DiscountValue = db.Decimal(value)
	c.MinimumCartValue = db.DecimalPtr(minimum)
	c.MaxDiscount = db.DecimalPtr(maxDiscount)
	return c, nil
}
