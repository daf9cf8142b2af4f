package inventory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StockBatch is one received lot of a product unit.
type StockBatch struct {
	ID              int64            `json:"id"`
	ProductID       int64            `json:"product_id"`
	UnitID          int64            `json:"unit_id"`
	BatchNumber     string           `json:"batch_number"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
	Quantity        int64            `json:"quantity"`
	InitialQuantity int64            `json:"initial_quantity"`
	PurchasePrice   *decimal.Decimal `json:"purchase_price,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ProductUnitQuantity caches the summed batch quantity of a product unit.
type ProductUnitQuantity struct {
	ProductID int64     `json:"product_id"`
	UnitID    int64     `json:"unit_id"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductUnit identifies the stock-keeping pair batches are grouped by.
type ProductUnit struct {
	ProductID int64 `json:"product_id"`
	UnitID    int64 `json:"unit_id"`
}

// Deduction records how much was taken from one batch.
type Deduction struct {
	BatchID     int64      `json:"batch_id"`
	ProductID   int64      `json:"product_id"`
	UnitID      int64      `json:"unit_id"`
	BatchNumber string     `json:"batch_number"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Quantity    int64      `json:"quantity"`
}

// DeductRequest asks for quantity units of a product unit.
type DeductRequest struct {
	ProductID int64 `json:"product_id"`
	UnitID    int64 `json:"unit_id"`
	Quantity  int64 `json:"quantity"`
}

// LineDeduction pairs a request with the batches that satisfied it.
type LineDeduction struct {
	Request    DeductRequest `json:"request"`
	Deductions []Deduction   `json:"deductions"`
}

// ReceiveBatchInput describes a stock receipt.
type ReceiveBatchInput struct {
	ProductID     int64
	UnitID        int64
	BatchNumber   string
	ExpiryDate    *time.Time
	Quantity      int64
	PurchasePrice *decimal.Decimal
}

// AdjustBatchInput sets a batch's remaining quantity after a count.
type AdjustBatchInput struct {
	BatchID  int64
	Quantity int64
	Reason   string
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	ProductID    int64
	UnitID       int64
	IncludeEmpty bool
	Limit        int
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates the batches cannot cover the request.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrBatchNotFound indicates missing batch row.
	ErrBatchNotFound = errors.New("inventory: batch not found")
	// ErrQuantityOutOfRange indicates an adjustment outside [0, initial quantity].
	ErrQuantityOutOfRange = errors.New("inventory: quantity outside batch range")
	// ErrInvalidBatch indicates a malformed receipt.
	ErrInvalidBatch = errors.New("inventory: invalid batch")
	// ErrInvalidDays indicates a negative look-ahead window.
	ErrInvalidDays = errors.New("inventory: days must be >= 0")
)

// ShortageError reports the product unit that could not be covered.
type ShortageError struct {
	ProductID int64
	UnitID    int64
	Requested int64
	Available int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d unit %d: requested %d, available %d",
		e.ProductID, e.UnitID, e.Requested, e.Available)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}

// SortFEFO orders batches first-expired-first-out. Batches without an expiry
// date go last; ties keep receipt order.
func SortFEFO(batches []StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func sumQuantity(batches []StockBatch) int64 {
	var total int64
	for _, b := range batches {
		total += b.Quantity
	}
	return total
}
