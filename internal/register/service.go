package register

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, name string) (Register, error)
	Get(ctx context.Context, id int64) (Register, error)
	ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives cash movement counters.
type MetricsPort interface {
	CashMoved(kind string, amount decimal.Decimal)
}

// Service runs the cash drawer state machine. Balance updates of one
// register are serialised by its lock and a row lock.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	locker  shared.Locker
	metrics MetricsPort
	now     func() time.Time
}

// NewService builds Service. A nil locker falls back to an in-process one.
func NewService(repo RepositoryPort, audit AuditPort, locker shared.Locker, metrics MetricsPort) *Service {
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	return &Service{repo: repo, audit: audit, locker: locker, metrics: metrics, now: time.Now}
}

// Create registers a new closed drawer.
func (s *Service) Create(ctx context.Context, name string) (Register, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Register{}, ErrInvalidName
	}
	reg, err := s.repo.Create(ctx, name)
	if err != nil {
		return Register{}, err
	}
	s.record(ctx, "register:create", reg.ID, map[string]any{"name": name})
	return reg, nil
}

// Get returns a register.
func (s *Service) Get(ctx context.Context, id int64) (Register, error) {
	return s.repo.Get(ctx, id)
}

// ListMovements returns movements since the given time, oldest first. A zero
// since lists the current period, or everything for a never-opened drawer.
func (s *Service) ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error) {
	if since.IsZero() {
		reg, err := s.repo.Get(ctx, registerID)
		if err != nil {
			return nil, err
		}
		if reg.OpenedAt != nil {
			since = *reg.OpenedAt
		}
	}
	return s.repo.ListMovements(ctx, registerID, since)
}

// Open starts a period with balance set to openingBalance.
func (s *Service) Open(ctx context.Context, registerID int64, openingBalance decimal.Decimal, author int64) (Register, error) {
	if openingBalance.IsNegative() {
		return Register{}, fmt.Errorf("%w: opening balance must be >= 0", ErrInvalidMovement)
	}
	var reg Register
	err := s.withRegister(ctx, registerID, func(ctx context.Context, tx TxRepository, current Register) error {
		if current.Status != StatusClosed {
			return ErrAlreadyOpen
		}
		now := s.now().UTC()
		reg = current
		reg.Status = StatusOpened
		reg.Balance = openingBalance
		reg.OpeningBalance = openingBalance
		reg.OpenedAt = &now
		reg.OpenedBy = author
		reg.ClosedAt = nil
		reg.ClosedBy = 0
		return tx.Update(ctx, reg)
	})
	if err != nil {
		return Register{}, err
	}
	s.record(ctx, "register:open", registerID, map[string]any{"opening_balance": openingBalance.String(), "author": author})
	return reg, nil
}

// CashIn adds cash to an opened drawer.
func (s *Service) CashIn(ctx context.Context, registerID int64, amount decimal.Decimal, description string, author int64) (Movement, error) {
	return s.move(ctx, registerID, Movement{Type: MovementCashIn, Amount: amount, Description: description, Author: author})
}

// CashOut removes cash from an opened drawer. The balance may go negative.
func (s *Service) CashOut(ctx context.Context, registerID int64, amount decimal.Decimal, description string, author int64) (Movement, error) {
	return s.move(ctx, registerID, Movement{Type: MovementCashOut, Amount: amount, Description: description, Author: author})
}

// RecordSale books an order payment into an opened drawer.
func (s *Service) RecordSale(ctx context.Context, registerID int64, orderID uuid.UUID, amount decimal.Decimal, author int64) (Movement, error) {
	id := orderID
	return s.move(ctx, registerID, Movement{
		Type:        MovementSale,
		Amount:      amount,
		Description: "sale " + orderID.String(),
		Author:      author,
		OrderID:     &id,
	})
}

// Close ends the period, keeping the balance as the closing balance.
func (s *Service) Close(ctx context.Context, registerID int64, author int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.withRegister(ctx, registerID, func(ctx context.Context, tx TxRepository, current Register) error {
		if current.Status != StatusOpened {
			return ErrNotOpen
		}
		since := time.Time{}
		if current.OpenedAt != nil {
			since = *current.OpenedAt
		}
		movements, err := tx.ListMovements(ctx, registerID, since)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		reg := current
		reg.Status = StatusClosed
		reg.ClosedAt = &now
		reg.ClosedBy = author
		if err := tx.Update(ctx, reg); err != nil {
			return err
		}
		rec = reconcile(reg, movements, now)
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.record(ctx, "register:close", registerID, map[string]any{
		"closing":  rec.Closing.String(),
		"expected": rec.Expected.String(),
		"author":   author,
	})
	return rec, nil
}

// EnsureOpen fails with ErrNotOpen unless the register is opened.
func (s *Service) EnsureOpen(ctx context.Context, registerID int64) error {
	reg, err := s.repo.Get(ctx, registerID)
	if err != nil {
		return err
	}
	if reg.Status != StatusOpened {
		return ErrNotOpen
	}
	return nil
}

func (s *Service) move(ctx context.Context, registerID int64, m Movement) (Movement, error) {
	m.Description = strings.TrimSpace(m.Description)
	if !m.Amount.IsPositive() {
		return Movement{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidMovement)
	}
	if m.Description == "" {
		return Movement{}, fmt.Errorf("%w: description required", ErrInvalidMovement)
	}
	err := s.withRegister(ctx, registerID, func(ctx context.Context, tx TxRepository, current Register) error {
		if current.Status != StatusOpened {
			return ErrNotOpen
		}
		reg := current
		if m.Type == MovementCashOut {
			reg.Balance = reg.Balance.Sub(m.Amount)
		} else {
			reg.Balance = reg.Balance.Add(m.Amount)
		}
		m.ID = uuid.New()
		m.RegisterID = registerID
		m.CreatedAt = s.now().UTC()
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		return tx.Update(ctx, reg)
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, "register:"+string(m.Type), registerID, map[string]any{
		"movement_id": m.ID.String(),
		"amount":      m.Amount.String(),
		"description": m.Description,
		"author":      m.Author,
	})
	if s.metrics != nil {
		s.metrics.CashMoved(string(m.Type), m.Amount)
	}
	return m, nil
}

func (s *Service) withRegister(ctx context.Context, registerID int64, fn func(context.Context, TxRepository, Register) error) error {
	unlock, err := s.locker.Lock(ctx, shared.RegisterLockKey(registerID))
	if err != nil {
		return err
	}
	defer unlock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, registerID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}

func (s *Service) record(ctx context.Context, action string, registerID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "register",
		EntityID: fmt.Sprint(registerID),
		Meta:     meta,
	})
}
