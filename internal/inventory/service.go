package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, id int64) (StockBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]StockBatch, error)
	SumQuantity(ctx context.Context, productID, unitID int64) (int64, error)
	GetAggregate(ctx context.Context, productID, unitID int64) (ProductUnitQuantity, error)
	ListExpiring(ctx context.Context, until time.Time) ([]StockBatch, error)
	ListProductUnits(ctx context.Context) ([]ProductUnit, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives stock movement counters.
type MetricsPort interface {
	StockMoved(kind string, units int64)
	StockShortage()
}

// Service coordinates the batch ledger. Every mutation of a product unit's
// batches runs under that unit's lock and re-syncs its aggregate before the
// transaction commits.
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

// DeductStockFEFO takes quantity units from the earliest-expiring batches.
// Either the whole quantity is deducted or nothing is.
func (s *Service) DeductStockFEFO(ctx context.Context, productID, unitID, quantity int64) ([]Deduction, error) {
	lines, err := s.DeductLinesFEFO(ctx, []DeductRequest{{ProductID: productID, UnitID: unitID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	return lines[0].Deductions, nil
}

// DeductLinesFEFO deducts several requests in one transaction. Requests for
// the same product unit draw from the same batches in request order. A
// shortage on any product unit rejects all requests.
func (s *Service) DeductLinesFEFO(ctx context.Context, reqs []DeductRequest) ([]LineDeduction, error) {
	if len(reqs) == 0 {
		return nil, ErrInvalidQuantity
	}
	var (
		keys   []string
		units  []ProductUnit
		wanted = map[ProductUnit]int64{}
	)
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		pu := ProductUnit{ProductID: req.ProductID, UnitID: req.UnitID}
		if _, ok := wanted[pu]; !ok {
			units = append(units, pu)
			keys = append(keys, shared.StockLockKey(pu.ProductID, pu.UnitID))
		}
		wanted[pu] += req.Quantity
	}

	unlock, err := shared.LockAll(ctx, s.locker, keys)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result []LineDeduction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pools := make(map[ProductUnit][]StockBatch, len(units))
		for _, pu := range units {
			batches, err := tx.LockBatches(ctx, pu.ProductID, pu.UnitID)
			if err != nil {
				return err
			}
			SortFEFO(batches)
			if available := sumQuantity(batches); available < wanted[pu] {
				return &ShortageError{ProductID: pu.ProductID, UnitID: pu.UnitID, Requested: wanted[pu], Available: available}
			}
			pools[pu] = batches
		}

		result = make([]LineDeduction, 0, len(reqs))
		touched := map[int64]StockBatch{}
		for _, req := range reqs {
			pu := ProductUnit{ProductID: req.ProductID, UnitID: req.UnitID}
			line := LineDeduction{Request: req}
			remaining := req.Quantity
			batches := pools[pu]
			for i := range batches {
				if remaining == 0 {
					break
				}
				if batches[i].Quantity == 0 {
					continue
				}
				take := min(batches[i].Quantity, remaining)
				batches[i].Quantity -= take
				remaining -= take
				touched[batches[i].ID] = batches[i]
				line.Deductions = append(line.Deductions, Deduction{
					BatchID:     batches[i].ID,
					ProductID:   pu.ProductID,
					UnitID:      pu.UnitID,
					BatchNumber: batches[i].BatchNumber,
					ExpiryDate:  batches[i].ExpiryDate,
					Quantity:    take,
				})
			}
			result = append(result, line)
		}
		for _, pu := range units {
			for _, b := range pools[pu] {
				if _, ok := touched[b.ID]; !ok {
					continue
				}
				if err := tx.UpdateBatchQuantity(ctx, b.ID, b.Quantity); err != nil {
					return err
				}
			}
			if err := s.syncTx(ctx, tx, pu.ProductID, pu.UnitID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil && isShortage(err) {
			s.metrics.StockShortage()
		}
		return nil, err
	}

	for _, line := range result {
		s.record(ctx, "inventory:deduct", "product_unit", unitEntityID(line.Request.ProductID, line.Request.UnitID), map[string]any{
			"quantity":   line.Request.Quantity,
			"deductions": line.Deductions,
		})
		if s.metrics != nil {
			s.metrics.StockMoved("deduct", line.Request.Quantity)
		}
	}
	return result, nil
}

// RestoreDeductions returns deducted quantities to the batches they came
// from, never above a batch's initial quantity.
func (s *Service) RestoreDeductions(ctx context.Context, deductions []Deduction) error {
	if len(deductions) == 0 {
		return nil
	}
	var (
		keys  []string
		units []ProductUnit
		seen  = map[ProductUnit]bool{}
	)
	for _, d := range deductions {
		if d.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		pu := ProductUnit{ProductID: d.ProductID, UnitID: d.UnitID}
		if !seen[pu] {
			seen[pu] = true
			units = append(units, pu)
			keys = append(keys, shared.StockLockKey(pu.ProductID, pu.UnitID))
		}
	}

	unlock, err := shared.LockAll(ctx, s.locker, keys)
	if err != nil {
		return err
	}
	defer unlock()

	var restored int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, d := range deductions {
			batch, err := tx.GetBatchForUpdate(ctx, d.BatchID)
			if err != nil {
				return err
			}
			qty := min(batch.Quantity+d.Quantity, batch.InitialQuantity)
			restored += qty - batch.Quantity
			if err := tx.UpdateBatchQuantity(ctx, batch.ID, qty); err != nil {
				return err
			}
		}
		for _, pu := range units {
			if err := s.syncTx(ctx, tx, pu.ProductID, pu.UnitID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, pu := range units {
		s.record(ctx, "inventory:restore", "product_unit", unitEntityID(pu.ProductID, pu.UnitID), map[string]any{
			"deductions": deductions,
		})
	}
	if s.metrics != nil {
		s.metrics.StockMoved("restore", restored)
	}
	return nil
}

// GetTotalStock sums the remaining quantity over the unit's batches.
func (s *Service) GetTotalStock(ctx context.Context, productID, unitID int64) (int64, error) {
	return s.repo.SumQuantity(ctx, productID, unitID)
}

// SyncProductUnitQuantity recomputes the cached aggregate from the batches.
func (s *Service) SyncProductUnitQuantity(ctx context.Context, productID, unitID int64) (ProductUnitQuantity, error) {
	unlock, err := s.locker.Lock(ctx, shared.StockLockKey(productID, unitID))
	if err != nil {
		return ProductUnitQuantity{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.syncTx(ctx, tx, productID, unitID)
	})
	if err != nil {
		return ProductUnitQuantity{}, err
	}
	return s.repo.GetAggregate(ctx, productID, unitID)
}

// ResyncAll re-syncs the aggregate of every known product unit and returns
// how many were processed.
func (s *Service) ResyncAll(ctx context.Context) (int, error) {
	units, err := s.repo.ListProductUnits(ctx)
	if err != nil {
		return 0, err
	}
	for i, pu := range units {
		if _, err := s.SyncProductUnitQuantity(ctx, pu.ProductID, pu.UnitID); err != nil {
			return i, fmt.Errorf("inventory: resync %d/%d: %w", pu.ProductID, pu.UnitID, err)
		}
	}
	return len(units), nil
}

// GetAggregate returns the cached quantity of a product unit.
func (s *Service) GetAggregate(ctx context.Context, productID, unitID int64) (ProductUnitQuantity, error) {
	return s.repo.GetAggregate(ctx, productID, unitID)
}

// GetExpiringSoon lists non-empty batches expiring within days from now,
// earliest first.
func (s *Service) GetExpiringSoon(ctx context.Context, days int) ([]StockBatch, error) {
	if days < 0 {
		return nil, ErrInvalidDays
	}
	until := s.now().AddDate(0, 0, days)
	batches, err := s.repo.ListExpiring(ctx, until)
	if err != nil {
		return nil, err
	}
	SortFEFO(batches)
	return batches, nil
}

// ListBatches lists batches of a product unit in FEFO order.
func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]StockBatch, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	batches, err := s.repo.ListBatches(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortFEFO(batches)
	return batches, nil
}

// ReceiveBatch records a new lot and syncs the aggregate.
func (s *Service) ReceiveBatch(ctx context.Context, input ReceiveBatchInput) (StockBatch, error) {
	input.BatchNumber = strings.TrimSpace(input.BatchNumber)
	if input.ProductID <= 0 || input.UnitID <= 0 {
		return StockBatch{}, fmt.Errorf("%w: product and unit required", ErrInvalidBatch)
	}
	if input.BatchNumber == "" {
		return StockBatch{}, fmt.Errorf("%w: batch number required", ErrInvalidBatch)
	}
	if input.Quantity <= 0 {
		return StockBatch{}, ErrInvalidQuantity
	}
	if input.PurchasePrice != nil && input.PurchasePrice.IsNegative() {
		return StockBatch{}, fmt.Errorf("%w: purchase price must be >= 0", ErrInvalidBatch)
	}

	unlock, err := s.locker.Lock(ctx, shared.StockLockKey(input.ProductID, input.UnitID))
	if err != nil {
		return StockBatch{}, err
	}
	defer unlock()

	var batch StockBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertBatch(ctx, StockBatch{
			ProductID:       input.ProductID,
			UnitID:          input.UnitID,
			BatchNumber:     input.BatchNumber,
			ExpiryDate:      input.ExpiryDate,
			Quantity:        input.Quantity,
			InitialQuantity: input.Quantity,
			PurchasePrice:   input.PurchasePrice,
			CreatedAt:       s.now().UTC(),
		})
		if err != nil {
			return err
		}
		batch = created
		return s.syncTx(ctx, tx, input.ProductID, input.UnitID)
	})
	if err != nil {
		return StockBatch{}, err
	}
	s.record(ctx, "inventory:receive", "stock_batch", fmt.Sprint(batch.ID), map[string]any{
		"product_id":   batch.ProductID,
		"unit_id":      batch.UnitID,
		"batch_number": batch.BatchNumber,
		"quantity":     batch.Quantity,
	})
	if s.metrics != nil {
		s.metrics.StockMoved("receive", batch.Quantity)
	}
	return batch, nil
}

// AdjustBatchQuantity sets a batch's remaining quantity within
// [0, initial quantity] and syncs the aggregate.
func (s *Service) AdjustBatchQuantity(ctx context.Context, input AdjustBatchInput) (StockBatch, error) {
	if input.Quantity < 0 {
		return StockBatch{}, ErrQuantityOutOfRange
	}
	var (
		before int64
		batch  StockBatch
	)
	err := s.mutateBatch(ctx, input.BatchID, func(ctx context.Context, tx TxRepository, current StockBatch) error {
		if input.Quantity > current.InitialQuantity {
			return ErrQuantityOutOfRange
		}
		before = current.Quantity
		batch = current
		batch.Quantity = input.Quantity
		return tx.UpdateBatchQuantity(ctx, current.ID, input.Quantity)
	})
	if err != nil {
		return StockBatch{}, err
	}
	s.record(ctx, "inventory:adjust", "stock_batch", fmt.Sprint(batch.ID), map[string]any{
		"from":   before,
		"to":     batch.Quantity,
		"reason": strings.TrimSpace(input.Reason),
	})
	if s.metrics != nil {
		s.metrics.StockMoved("adjust", abs(batch.Quantity-before))
	}
	return batch, nil
}

// DeleteBatch removes a batch and syncs the aggregate.
func (s *Service) DeleteBatch(ctx context.Context, batchID int64) error {
	var removed StockBatch
	err := s.mutateBatch(ctx, batchID, func(ctx context.Context, tx TxRepository, current StockBatch) error {
		removed = current
		return tx.DeleteBatch(ctx, current.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "inventory:delete", "stock_batch", fmt.Sprint(batchID), map[string]any{
		"product_id":   removed.ProductID,
		"unit_id":      removed.UnitID,
		"batch_number": removed.BatchNumber,
		"quantity":     removed.Quantity,
	})
	if s.metrics != nil {
		s.metrics.StockMoved("delete", removed.Quantity)
	}
	return nil
}

// mutateBatch resolves the batch's product unit, takes its lock and runs fn
// on the row-locked batch before syncing the aggregate.
func (s *Service) mutateBatch(ctx context.Context, batchID int64, fn func(context.Context, TxRepository, StockBatch) error) error {
	probe, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, shared.StockLockKey(probe.ProductID, probe.UnitID))
	if err != nil {
		return err
	}
	defer unlock()

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, current); err != nil {
			return err
		}
		return s.syncTx(ctx, tx, current.ProductID, current.UnitID)
	})
}

func (s *Service) syncTx(ctx context.Context, tx TxRepository, productID, unitID int64) error {
	total, err := tx.SumQuantity(ctx, productID, unitID)
	if err != nil {
		return err
	}
	return tx.UpsertAggregate(ctx, ProductUnitQuantity{
		ProductID: productID,
		UnitID:    unitID,
		Quantity:  total,
		UpdatedAt: s.now().UTC(),
	})
}

func (s *Service) record(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}

func unitEntityID(productID, unitID int64) string {
	return fmt.Sprintf("%d:%d", productID, unitID)
}

func isShortage(err error) bool {
	var shortage *ShortageError
	return errors.As(err, &shortage)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
