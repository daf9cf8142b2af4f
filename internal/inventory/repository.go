package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists batches and aggregates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockBatches(ctx context.Context, productID, unitID int64) ([]StockBatch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (StockBatch, error)
	InsertBatch(ctx context.Context, batch StockBatch) (StockBatch, error)
	UpdateBatchQuantity(ctx context.Context, id, quantity int64) error
	DeleteBatch(ctx context.Context, id int64) error
	SumQuantity(ctx context.Context, productID, unitID int64) (int64, error)
	UpsertAggregate(ctx context.Context, agg ProductUnitQuantity) error
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const batchColumns = `id, product_id, unit_id, batch_number, expiry_date, quantity, initial_quantity, purchase_price, created_at`

func (r *Repository) GetBatch(ctx context.Context, id int64) (StockBatch, error) {
	return getBatch(ctx, r.pool, `SELECT `+batchColumns+` FROM stock_batches WHERE id = $1`, id)
}

func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]StockBatch, error) {
	return queryBatches(ctx, r.pool, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id = $1 AND unit_id = $2 AND ($3 OR quantity > 0)
ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC
LIMIT $4`, filter.ProductID, filter.UnitID, filter.IncludeEmpty, filter.Limit)
}

func (r *Repository) SumQuantity(ctx context.Context, productID, unitID int64) (int64, error) {
	return sumQuantityQuery(ctx, r.pool, productID, unitID)
}

func (r *Repository) GetAggregate(ctx context.Context, productID, unitID int64) (ProductUnitQuantity, error) {
	agg := ProductUnitQuantity{ProductID: productID, UnitID: unitID}
	err := r.pool.QueryRow(ctx, `SELECT quantity, updated_at FROM product_unit_quantities WHERE product_id = $1 AND unit_id = $2`,
		productID, unitID).Scan(&agg.Quantity, &agg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return agg, nil
	}
	return agg, err
}

func (r *Repository) ListExpiring(ctx context.Context, until time.Time) ([]StockBatch, error) {
	return queryBatches(ctx, r.pool, `SELECT `+batchColumns+` FROM stock_batches
WHERE expiry_date IS NOT NULL AND expiry_date <= $1 AND quantity > 0
ORDER BY expiry_date ASC, created_at ASC, id ASC`, pgtype.Date{Time: until, Valid: true})
}

func (r *Repository) ListProductUnits(ctx context.Context) ([]ProductUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, unit_id FROM stock_batches
UNION
SELECT product_id, unit_id FROM product_unit_quantities
ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []ProductUnit
	for rows.Next() {
		var pu ProductUnit
		if err := rows.Scan(&pu.ProductID, &pu.UnitID); err != nil {
			return nil, err
		}
		units = append(units, pu)
	}
	return units, rows.Err()
}

func (t *txRepo) LockBatches(ctx context.Context, productID, unitID int64) ([]StockBatch, error) {
	return queryBatches(ctx, t.tx, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id = $1 AND unit_id = $2 AND quantity > 0
ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC
FOR UPDATE`, productID, unitID)
}

func (t *txRepo) GetBatchForUpdate(ctx context.Context, id int64) (StockBatch, error) {
	return getBatch(ctx, t.tx, `SELECT `+batchColumns+` FROM stock_batches WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) InsertBatch(ctx context.Context, batch StockBatch) (StockBatch, error) {
	var expiry pgtype.Date
	if batch.ExpiryDate != nil {
		expiry = pgtype.Date{Time: *batch.ExpiryDate, Valid: true}
	}
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_batches (product_id, unit_id, batch_number, expiry_date, quantity, initial_quantity, purchase_price, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+batchColumns,
		batch.ProductID, batch.UnitID, batch.BatchNumber, expiry, batch.Quantity, batch.InitialQuantity,
		db.NullNumeric(batch.PurchasePrice), batch.CreatedAt)
	return scanBatch(row)
}

func (t *txRepo) UpdateBatchQuantity(ctx context.Context, id, quantity int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_batches SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (t *txRepo) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM stock_batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (t *txRepo) SumQuantity(ctx context.Context, productID, unitID int64) (int64, error) {
	return sumQuantityQuery(ctx, t.tx, productID, unitID)
}

func (t *txRepo) UpsertAggregate(ctx context.Context, agg ProductUnitQuantity) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO product_unit_quantities (product_id, unit_id, quantity, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (product_id, unit_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		agg.ProductID, agg.UnitID, agg.Quantity, agg.UpdatedAt)
	return err
}

func sumQuantityQuery(ctx context.Context, q querier, productID, unitID int64) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::bigint FROM stock_batches WHERE product_id = $1 AND unit_id = $2`,
		productID, unitID).Scan(&total)
	return total, err
}

func getBatch(ctx context.Context, q querier, sql string, args ...any) (StockBatch, error) {
	batch, err := scanBatch(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockBatch{}, ErrBatchNotFound
	}
	return batch, err
}

func queryBatches(ctx context.Context, q querier, sql string, args ...any) ([]StockBatch, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []StockBatch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func scanBatch(row pgx.Row) (StockBatch, error) {
	var (
		b      StockBatch
		expiry pgtype.Date
		price  pgtype.Numeric
	)
	if err := row.Scan(&b.ID, &b.ProductID, &b.UnitID, &b.BatchNumber, &expiry, &b.Quantity, &b.InitialQuantity, &price, &b.CreatedAt); err != nil {
		return StockBatch{}, err
	}
	if expiry.Valid {
		d := expiry.Time
		b.ExpiryDate = &d
	}
	b.PurchasePrice = db.DecimalPtr(price)
	return b, nil
}
