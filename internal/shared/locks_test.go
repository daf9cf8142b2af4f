package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, locker Locker) {
	t.Helper()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, StockLockKey(1, 1))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	exerciseLocker(t, km)
	require.Empty(t, km.locks)
}

func TestKeyedMutexRespectsContext(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA, err := km.Lock(context.Background(), StockLockKey(1, 1))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlockB, err := km.Lock(ctx, StockLockKey(1, 2))
	require.NoError(t, err)
	unlockB()
}

func TestLockAllDedupesAndOrders(t *testing.T) {
	km := NewKeyedMutex()
	release, err := LockAll(context.Background(), km, []string{"b", "a", "b"})
	require.NoError(t, err)
	require.Len(t, km.locks, 2)
	release()
	require.Empty(t, km.locks)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Second)
	exerciseLocker(t, locker)
	require.False(t, mr.Exists(StockLockKey(1, 1)))
}

func TestRedisLockerTimesOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 50*time.Millisecond)
	unlock, err := locker.Lock(context.Background(), RegisterLockKey(3))
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), RegisterLockKey(3))
	require.ErrorIs(t, err, ErrLockTimeout)
}
