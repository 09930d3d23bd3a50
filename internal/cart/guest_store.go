package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type guestStoreClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(deviceID string) string
}

// GuestStore holds device-scoped guest carts in Redis as JSON snapshots.
// Keys expire after the configured TTL so abandoned guest carts reap
// themselves; an expired or missing key reads as an empty cart.
type GuestStore struct {
	store guestStoreClient
	ttl   time.Duration
}

type guestCartDocument struct {
	Items   []Line    `json:"items"`
	SavedAt time.Time `json:"saved_at"`
}

// NewGuestStore wires the store against the shared Redis client.
func NewGuestStore(store guestStoreClient, ttl time.Duration) (*GuestStore, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("guest cart ttl must be positive")
	}
	return &GuestStore{store: store, ttl: ttl}, nil
}

// Load returns the device's guest cart, or an empty cart when none is stored.
func (s *GuestStore) Load(ctx context.Context, deviceID string) ([]Line, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	raw, err := s.store.Get(ctx, s.store.GuestCartKey(deviceID))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading guest cart: %w", err)
	}
	var doc guestCartDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding guest cart: %w", err)
	}
	return doc.Items, nil
}

// Save overwrites the device's guest cart and refreshes its TTL.
func (s *GuestStore) Save(ctx context.Context, deviceID string, items []Line) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	doc := guestCartDocument{Items: items, SavedAt: time.Now().UTC()}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding guest cart: %w", err)
	}
	if err := s.store.Set(ctx, s.store.GuestCartKey(deviceID), raw, s.ttl); err != nil {
		return fmt.Errorf("saving guest cart: %w", err)
	}
	return nil
}

// Clear removes the device's guest cart.
func (s *GuestStore) Clear(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	if err := s.store.Del(ctx, s.store.GuestCartKey(deviceID)); err != nil {
		return fmt.Errorf("clearing guest cart: %w", err)
	}
	return nil
}
