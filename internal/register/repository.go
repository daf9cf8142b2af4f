package register

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists registers and their movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Register, error)
	Update(ctx context.Context, reg Register) error
	InsertMovement(ctx context.Context, m Movement) error
	ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error)
}

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

const registerColumns = `id, name, status, balance, opening_balance, opened_at, closed_at, opened_by, closed_by, created_at`

func (r *Repository) Create(ctx context.Context, name string) (Register, error) {
	return scanRegister(r.pool.QueryRow(ctx, `INSERT INTO registers (name, status, balance, opening_balance)
VALUES ($1, 'closed', 0, 0)
RETURNING `+registerColumns, name))
}

func (r *Repository) Get(ctx context.Context, id int64) (Register, error) {
	return getRegister(ctx, r.pool, `SELECT `+registerColumns+` FROM registers WHERE id = $1`, id)
}

func (r *Repository) ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error) {
	return listMovements(ctx, r.pool, registerID, since)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Register, error) {
	return getRegister(ctx, t.tx, `SELECT `+registerColumns+` FROM registers WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) Update(ctx context.Context, reg Register) error {
	_, err := t.tx.Exec(ctx, `UPDATE registers
SET status = $2, balance = $3, opening_balance = $4, opened_at = $5, closed_at = $6, opened_by = $7, closed_by = $8
WHERE id = $1`,
		reg.ID, string(reg.Status), db.Numeric(reg.Balance), db.Numeric(reg.OpeningBalance),
		reg.OpenedAt, reg.ClosedAt, nullActor(reg.OpenedBy), nullActor(reg.ClosedBy))
	return err
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO register_movements (id, register_id, type, amount, description, author, order_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.RegisterID, string(m.Type), db.Numeric(m.Amount), m.Description, m.Author, m.OrderID, m.CreatedAt)
	return err
}

func (t *txRepo) ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error) {
	return listMovements(ctx, t.tx, registerID, since)
}

func listMovements(ctx context.Context, q querier, registerID int64, since time.Time) ([]Movement, error) {
	rows, err := q.Query(ctx, `SELECT id, register_id, type, amount, description, author, order_id, created_at
FROM register_movements
WHERE register_id = $1 AND created_at >= $2
ORDER BY created_at ASC, id ASC`, registerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var (
			m       Movement
			kind    string
			amount  pgtype.Numeric
			orderID pgtype.UUID
		)
		if err := rows.Scan(&m.ID, &m.RegisterID, &kind, &amount, &m.Description, &m.Author, &orderID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(kind)
		m.Amount = db.Decimal(amount)
		if orderID.Valid {
			id := uuid.UUID(orderID.Bytes)
			m.OrderID = &id
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func getRegister(ctx context.Context, q querier, sql string, args ...any) (Register, error) {
	reg, err := scanRegister(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Register{}, ErrRegisterNotFound
	}
	return reg, err
}

func scanRegister(row pgx.Row) (Register, error) {
	var (
		reg      Register
		status   string
		balance  pgtype.Numeric
		opening  pgtype.Numeric
		openedBy pgtype.Int8
		closedBy pgtype.Int8
	)
	if err := row.Scan(&reg.ID, &reg.Name, &status, &balance, &opening, &reg.OpenedAt, &reg.ClosedAt, &openedBy, &closedBy, &reg.CreatedAt); err != nil {
		return Register{}, err
	}
	reg.Status = Status(status)
	reg.Balance = db.Decimal(balance)
	reg.OpeningBalance = db.Decimal(opening)
	reg.OpenedBy = openedBy.Int64
	reg.ClosedBy = closedBy.Int64
	return reg, nil
}

func nullActor(id int64) pgtype.Int8 {
	return pgtype.Int8{Int64: id, Valid: id != 0}
}
