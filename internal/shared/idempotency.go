package shared

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates a key that was already claimed.
var ErrIdempotencyConflict = errors.New("shared: idempotency key already used")

// ErrIdempotencyKeyRequired indicates an empty key or scope.
var ErrIdempotencyKeyRequired = errors.New("shared: idempotency key and scope required")

const uniqueViolation = "23505"

// IdempotencyStore claims request keys in the idempotency_keys table so a
// replayed request is rejected instead of executed twice.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// CheckAndInsert claims key within scope. A second claim of the same key
// returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	key, scope = strings.TrimSpace(key), strings.TrimSpace(scope)
	if key == "" || scope == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, scope, s.now().UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrIdempotencyConflict
	}
	return err
}

// Delete releases a key after the guarded work failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Cleanup drops keys claimed before the retention window and reports how
// many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
