package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StockLockKey builds the lock key serialising stock moves of one product unit.
func StockLockKey(productID, unitID int64) string {
	return fmt.Sprintf("pos:stock:%d:%d:lock", productID, unitID)
}

// RegisterLockKey builds the lock key serialising balance updates of one register.
func RegisterLockKey(registerID int64) string {
	return fmt.Sprintf("pos:register:%d:lock", registerID)
}

// Locker grants exclusive sections keyed by string.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockAll acquires every key in sorted order so that callers locking
// overlapping sets cannot deadlock. Duplicate keys are locked once.
func LockAll(ctx context.Context, locker Locker, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	unlocks := make([]func(), 0, len(sorted))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// KeyedMutex is an in-process Locker. Entries are dropped once nobody holds
// or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex builds an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, entry, false)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { k.release(key, entry, true) })
	}, nil
}

func (k *KeyedMutex) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// ErrLockTimeout indicates the lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every process talking to the same Redis.
// Locks expire after ttl so a crashed holder cannot block forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a RedisLocker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 20 * time.Millisecond}
}

// Lock polls SET NX until the key is acquired, ctx ends or ttl elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
		})
	}, nil
}
