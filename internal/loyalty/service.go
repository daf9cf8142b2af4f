// Package loyalty accrues customer points on paid POS orders.
package loyalty

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrCustomerNotFound indicates an unknown customer.
var ErrCustomerNotFound = errors.New("loyalty: customer not found")

// Repository stores point balances.
type Repository interface {
	AddPoints(ctx context.Context, customerID, points int64) (int64, error)
	Balance(ctx context.Context, customerID int64) (int64, error)
}

// Service converts spend into points.
type Service struct {
	repo           Repository
	amountPerPoint decimal.Decimal
}

// NewService builds Service. One point is earned per amountPerPoint spent;
// a non-positive rate disables accrual.
func NewService(repo Repository, amountPerPoint decimal.Decimal) *Service {
	return &Service{repo: repo, amountPerPoint: amountPerPoint}
}

// Points is the number of whole points amount is worth.
func (s *Service) Points(amount decimal.Decimal) int64 {
	if !s.amountPerPoint.IsPositive() || !amount.IsPositive() {
		return 0
	}
	return amount.Div(s.amountPerPoint).Floor().IntPart()
}

// Accrue credits the customer with the points earned on amount and returns
// them.
func (s *Service) Accrue(ctx context.Context, customerID int64, amount decimal.Decimal) (int64, error) {
	points := s.Points(amount)
	if points == 0 {
		return 0, nil
	}
	if _, err := s.repo.AddPoints(ctx, customerID, points); err != nil {
		return 0, err
	}
	return points, nil
}

// Balance returns the customer's current points.
func (s *Service) Balance(ctx context.Context, customerID int64) (int64, error) {
	return s.repo.Balance(ctx, customerID)
}
