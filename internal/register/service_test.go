package register

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	registers map[int64]Register
	movements []Movement
	nextID    int64
	// beforeCommit runs after fn succeeds and before its writes land.
	beforeCommit func()
}

type memoryTx struct {
	registers map[int64]Register
	movements []Movement
	dirty     map[int64]bool
	inserted  []Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{registers: map[int64]Register{}}
}

// WithTx runs fn against a snapshot without holding the repository mutex.
// Register rows fn updated overwrite whatever committed in the meantime and
// inserted movements are appended.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{registers: map[int64]Register{}, dirty: map[int64]bool{}}
	r.mu.Lock()
	tx.movements = append([]Movement(nil), r.movements...)
	for id, reg := range r.registers {
		tx.registers[id] = reg
	}
	r.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	runtime.Gosched()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range tx.dirty {
		r.registers[id] = tx.registers[id]
	}
	r.movements = append(r.movements, tx.inserted...)
	return nil
}

func (r *memoryRepo) Create(ctx context.Context, name string) (Register, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reg := Register{ID: r.nextID, Name: name, Status: StatusClosed, CreatedAt: time.Now()}
	r.registers[reg.ID] = reg
	return reg, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Register, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[id]
	if !ok {
		return Register{}, ErrRegisterNotFound
	}
	return reg, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterMovements(r.movements, registerID, since), nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Register, error) {
	reg, ok := tx.registers[id]
	if !ok {
		return Register{}, ErrRegisterNotFound
	}
	return reg, nil
}

func (tx *memoryTx) Update(ctx context.Context, reg Register) error {
	tx.registers[reg.ID] = reg
	tx.dirty[reg.ID] = true
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.movements = append(tx.movements, m)
	tx.inserted = append(tx.inserted, m)
	return nil
}

func (tx *memoryTx) ListMovements(ctx context.Context, registerID int64, since time.Time) ([]Movement, error) {
	return filterMovements(tx.movements, registerID, since), nil
}

func filterMovements(all []Movement, registerID int64, since time.Time) []Movement {
	out := []Movement{}
	for _, m := range all {
		if m.RegisterID == registerID && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %s got %s", want, got)
}

func newTestService(t *testing.T) (*Service, *memoryRepo, Register) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	reg, err := svc.Create(context.Background(), " Front till ")
	require.NoError(t, err)
	require.Equal(t, "Front till", reg.Name)
	return svc, repo, reg
}

func TestRegisterLifecycle(t *testing.T) {
	svc, repo, reg := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, reg.ID, dec("100"), 7)
	require.NoError(t, err)
	_, err = svc.CashIn(ctx, reg.ID, dec("50"), "x", 7)
	require.NoError(t, err)
	_, err = svc.CashOut(ctx, reg.ID, dec("30"), "y", 7)
	require.NoError(t, err)

	current, err := svc.Get(ctx, reg.ID)
	require.NoError(t, err)
	requireDec(t, "120", current.Balance)

	rec, err := svc.Close(ctx, reg.ID, 7)
	require.NoError(t, err)
	requireDec(t, "120", rec.Closing)
	requireDec(t, "120", rec.Expected)
	require.True(t, rec.Balanced())
	require.Equal(t, 2, rec.Movements)

	_, err = svc.Close(ctx, reg.ID, 7)
	require.ErrorIs(t, err, ErrNotOpen)

	closed := repo.registers[reg.ID]
	require.Equal(t, StatusClosed, closed.Status)
	requireDec(t, "120", closed.Balance)
}

func TestOpenTwiceFails(t *testing.T) {
	svc, _, reg := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, reg.ID, dec("10"), 1)
	require.NoError(t, err)
	_, err = svc.Open(ctx, reg.ID, dec("10"), 1)
	require.ErrorIs(t, err, ErrAlreadyOpen)

	_, err = svc.Open(ctx, 999, dec("10"), 1)
	require.ErrorIs(t, err, ErrRegisterNotFound)
}

func TestMovementsRequireOpenRegister(t *testing.T) {
	svc, repo, reg := newTestService(t)
	ctx := context.Background()

	_, err := svc.CashIn(ctx, reg.ID, dec("5"), "float", 1)
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = svc.CashOut(ctx, reg.ID, dec("5"), "float", 1)
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = svc.RecordSale(ctx, reg.ID, uuid.New(), dec("5"), 1)
	require.ErrorIs(t, err, ErrNotOpen)
	require.Empty(t, repo.movements)
	require.ErrorIs(t, svc.EnsureOpen(ctx, reg.ID), ErrNotOpen)
}

func TestMovementValidation(t *testing.T) {
	svc, repo, reg := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, reg.ID, dec("10"), 1)
	require.NoError(t, err)

	_, err = svc.CashIn(ctx, reg.ID, dec("0"), "x", 1)
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.CashIn(ctx, reg.ID, dec("-1"), "x", 1)
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.CashOut(ctx, reg.ID, dec("1"), "   ", 1)
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.Open(ctx, reg.ID, dec("-1"), 1)
	require.ErrorIs(t, err, ErrInvalidMovement)

	require.Empty(t, repo.movements)
	requireDec(t, "10", repo.registers[reg.ID].Balance)
}

func TestCashOutMayGoNegative(t *testing.T) {
	svc, _, reg := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, reg.ID, dec("10"), 1)
	require.NoError(t, err)

	_, err = svc.CashOut(ctx, reg.ID, dec("25"), "supplier refund", 1)
	require.NoError(t, err)
	current, _ := svc.Get(ctx, reg.ID)
	requireDec(t, "-15", current.Balance)
}

func TestRecordSaleIsTiedToOrder(t *testing.T) {
	svc, _, reg := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, reg.ID, dec("0"), 1)
	require.NoError(t, err)

	orderID := uuid.New()
	m, err := svc.RecordSale(ctx, reg.ID, orderID, dec("42.50"), 3)
	require.NoError(t, err)
	require.Equal(t, MovementSale, m.Type)
	require.Equal(t, orderID, *m.OrderID)

	rec, err := svc.Close(ctx, reg.ID, 3)
	require.NoError(t, err)
	requireDec(t, "42.5", rec.Sales)
	requireDec(t, "42.5", rec.Closing)
}

func TestReopenStartsNewPeriod(t *testing.T) {
	svc, _, reg := newTestService(t)
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	_, err := svc.Open(ctx, reg.ID, dec("100"), 1)
	require.NoError(t, err)
	_, err = svc.CashIn(ctx, reg.ID, dec("20"), "float", 1)
	require.NoError(t, err)
	_, err = svc.Close(ctx, reg.ID, 1)
	require.NoError(t, err)

	clock = clock.Add(24 * time.Hour)
	reopened, err := svc.Open(ctx, reg.ID, dec("50"), 2)
	require.NoError(t, err)
	requireDec(t, "50", reopened.Balance)

	movements, err := svc.ListMovements(ctx, reg.ID, time.Time{})
	require.NoError(t, err)
	require.Empty(t, movements)

	all, err := svc.ListMovements(ctx, reg.ID, clock.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestConcurrentCashInKeepsEveryMovement(t *testing.T) {
	svc, repo, reg := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, reg.ID, dec("0"), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CashIn(ctx, reg.ID, dec("1.25"), "tip", 1)
		}()
	}
	wg.Wait()
	requireDec(t, "25", repo.registers[reg.ID].Balance)
	require.Len(t, repo.movements, 20)
}

type noLocker struct{}

func (noLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

func TestOverlappingCashInWithoutLockerLosesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, noLocker{}, nil)
	ctx := context.Background()
	reg, err := svc.Create(ctx, "Till")
	require.NoError(t, err)
	_, err = svc.Open(ctx, reg.ID, dec("0"), 1)
	require.NoError(t, err)

	var commit sync.WaitGroup
	commit.Add(2)
	repo.beforeCommit = func() {
		commit.Done()
		commit.Wait()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CashIn(ctx, reg.ID, dec("10"), "float", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, repo.movements, 2)
	requireDec(t, "10", repo.registers[reg.ID].Balance)
}
