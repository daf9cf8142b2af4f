package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// ErrProductNotFound indicates the product unit is not sellable.
var ErrProductNotFound = errors.New("cart: product not found")

// Catalog resolves the current price snapshot of a product unit.
type Catalog interface {
	FindProduct(ctx context.Context, productID, unitID int64) (Product, error)
}

// PGCatalog reads products from PostgreSQL.
type PGCatalog struct {
	pool *pgxpool.Pool
}

// NewCatalog constructs PGCatalog.
func NewCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

func (c *PGCatalog) FindProduct(ctx context.Context, productID, unitID int64) (Product, error) {
	var (
		p       Product
		name    string
		unit    string
		price   pgtype.Numeric
		taxRate pgtype.Numeric
	)
	err := c.pool.QueryRow(ctx, `SELECT p.id, pu.unit_id, p.name, pu.name, pu.price, p.tax_rate
FROM products p
JOIN product_units pu ON pu.product_id = p.id
WHERE p.id = $1 AND pu.unit_id = $2 AND p.active`, productID, unitID).
		Scan(&p.ID, &p.UnitID, &name, &unit, &price, &taxRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Name = name
	if unit != "" {
		p.Name = name + " (" + unit + ")"
	}
	p.UnitPrice = db.Decimal(price)
	p.TaxRate = db.Decimal(taxRate)
	return p, nil
}
