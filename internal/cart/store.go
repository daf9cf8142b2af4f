package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// HeldCart is a cart parked by the cashier to serve another customer.
type HeldCart struct {
	ID     uuid.UUID `json:"id"`
	Label  string    `json:"label"`
	HeldAt time.Time `json:"held_at"`
	Cart   *Cart     `json:"cart"`
}

// Store keeps one active cart and any held carts per POS session in Redis.
type Store struct {
	client  *redis.Client
	ttl     time.Duration
	taxType money.TaxType
}

// NewStore builds a Store. A zero ttl keeps carts until they are deleted.
func NewStore(client *redis.Client, ttl time.Duration, taxType money.TaxType) *Store {
	return &Store{client: client, ttl: ttl, taxType: taxType}
}

func activeKey(session string) string {
	return fmt.Sprintf("pos:cart:%s", session)
}

func heldKey(session string) string {
	return fmt.Sprintf("pos:cart:%s:held", session)
}

// Load returns the session's active cart, or a fresh one when none is stored.
func (s *Store) Load(ctx context.Context, session string) (*Cart, error) {
	if session == "" {
		return nil, errors.New("cart: session required")
	}
	raw, err := s.client.Get(ctx, activeKey(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(s.taxType), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("cart: decode: %w", err)
	}
	if c.TaxType == "" {
		c.TaxType = s.taxType
	}
	return &c, nil
}

// Save stores the session's active cart.
func (s *Store) Save(ctx context.Context, session string, c *Cart) error {
	if session == "" {
		return errors.New("cart: session required")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := s.client.Set(ctx, activeKey(session), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

// Delete drops the session's active cart.
func (s *Store) Delete(ctx context.Context, session string) error {
	return s.client.Del(ctx, activeKey(session)).Err()
}

// Hold parks the active cart under a label and leaves the session with an
// empty cart.
func (s *Store) Hold(ctx context.Context, session, label string) (HeldCart, error) {
	c, err := s.Load(ctx, session)
	if err != nil {
		return HeldCart{}, err
	}
	if c.IsEmpty() {
		return HeldCart{}, ErrEmptyCart
	}
	held := HeldCart{ID: uuid.New(), Label: label, HeldAt: time.Now().UTC(), Cart: c}
	raw, err := json.Marshal(held)
	if err != nil {
		return HeldCart{}, fmt.Errorf("cart: encode held: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, heldKey(session), held.ID.String(), raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, heldKey(session), s.ttl)
		}
		pipe.Del(ctx, activeKey(session))
		return nil
	})
	if err != nil {
		return HeldCart{}, fmt.Errorf("cart: hold: %w", err)
	}
	return held, nil
}

// ListHeld returns the session's held carts, oldest first.
func (s *Store) ListHeld(ctx context.Context, session string) ([]HeldCart, error) {
	values, err := s.client.HGetAll(ctx, heldKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart: list held: %w", err)
	}
	held := make([]HeldCart, 0, len(values))
	for _, raw := range values {
		var h HeldCart
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("cart: decode held: %w", err)
		}
		held = append(held, h)
	}
	sort.Slice(held, func(i, j int) bool { return held[i].HeldAt.Before(held[j].HeldAt) })
	return held, nil
}

// Resume restores a held cart as the active cart. The active cart must be empty.
func (s *Store) Resume(ctx context.Context, session string, heldID uuid.UUID) (*Cart, error) {
	active, err := s.Load(ctx, session)
	if err != nil {
		return nil, err
	}
	if !active.IsEmpty() {
		return nil, ErrCartNotEmpty
	}
	raw, err := s.client.HGet(ctx, heldKey(session), heldID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrHeldCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load held: %w", err)
	}
	var held HeldCart
	if err := json.Unmarshal(raw, &held); err != nil {
		return nil, fmt.Errorf("cart: decode held: %w", err)
	}
	cartRaw, err := json.Marshal(held.Cart)
	if err != nil {
		return nil, fmt.Errorf("cart: encode: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, activeKey(session), cartRaw, s.ttl)
		pipe.HDel(ctx, heldKey(session), heldID.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cart: resume: %w", err)
	}
	return held.Cart, nil
}
