package loyalty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository keeps balances on customers.loyalty_points.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AddPoints increments the balance atomically and returns the new value.
func (r *PGRepository) AddPoints(ctx context.Context, customerID, points int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `UPDATE customers SET loyalty_points = loyalty_points + $2, updated_at = NOW()
WHERE id = $1 RETURNING loyalty_points`, customerID, points).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCustomerNotFound
	}
	return balance, err
}

// Balance reads the current balance.
func (r *PGRepository) Balance(ctx context.Context, customerID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT loyalty_points FROM customers WHERE id = $1`, customerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCustomerNotFound
	}
	return balance, err
}
