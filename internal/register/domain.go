package register

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the cash drawer state.
type Status string

const (
	// StatusClosed is a drawer that accepts no movements.
	StatusClosed Status = "closed"
	// StatusOpened is a drawer in an active period.
	StatusOpened Status = "opened"
)

// MovementType enumerates balance-affecting movements.
type MovementType string

const (
	MovementCashIn  MovementType = "cash_in"
	MovementCashOut MovementType = "cash_out"
	MovementSale    MovementType = "sale"
)

// Register is a named cash drawer.
type Register struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Status         Status          `json:"status"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	OpenedBy       int64           `json:"opened_by,omitempty"`
	ClosedBy       int64           `json:"closed_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Movement is an append-only balance change.
type Movement struct {
	ID          uuid.UUID       `json:"id"`
	RegisterID  int64           `json:"register_id"`
	Type        MovementType    `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Author      int64           `json:"author"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Reconciliation summarises a closed period.
type Reconciliation struct {
	RegisterID     int64           `json:"register_id"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClosedAt       time.Time       `json:"closed_at"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CashIn         decimal.Decimal `json:"cash_in"`
	CashOut        decimal.Decimal `json:"cash_out"`
	Sales          decimal.Decimal `json:"sales"`
	Expected       decimal.Decimal `json:"expected"`
	Closing        decimal.Decimal `json:"closing"`
	Movements      int             `json:"movements"`
}

// Balanced reports whether the movements explain the closing balance.
func (r Reconciliation) Balanced() bool {
	return r.Expected.Equal(r.Closing)
}

var (
	// ErrAlreadyOpen indicates opening a drawer that is not closed.
	ErrAlreadyOpen = errors.New("register: already open")
	// ErrNotOpen indicates a movement or close on a closed drawer.
	ErrNotOpen = errors.New("register: not open")
	// ErrInvalidMovement indicates a non-positive amount or blank description.
	ErrInvalidMovement = errors.New("register: invalid movement")
	// ErrRegisterNotFound indicates missing register row.
	ErrRegisterNotFound = errors.New("register: not found")
	// ErrInvalidName indicates a blank register name.
	ErrInvalidName = errors.New("register: name required")
)

func reconcile(reg Register, movements []Movement, closedAt time.Time) Reconciliation {
	rec := Reconciliation{
		RegisterID:     reg.ID,
		OpenedAt:       reg.OpenedAt,
		ClosedAt:       closedAt,
		OpeningBalance: reg.OpeningBalance,
		CashIn:         decimal.Zero,
		CashOut:        decimal.Zero,
		Sales:          decimal.Zero,
		Closing:        reg.Balance,
		Movements:      len(movements),
	}
	for _, m := range movements {
		switch m.Type {
		case MovementCashIn:
			rec.CashIn = rec.CashIn.Add(m.Amount)
		case MovementCashOut:
			rec.CashOut = rec.CashOut.Add(m.Amount)
		case MovementSale:
			rec.Sales = rec.Sales.Add(m.Amount)
		}
	}
	rec.Expected = rec.OpeningBalance.Add(rec.CashIn).Add(rec.Sales).Sub(rec.CashOut)
	return rec
}
