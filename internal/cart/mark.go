package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type markClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	MigrationMarkKey(userID string) string
}

// MigrationMark records that guest-cart migration already ran for a user
// inside the expiry window. The mark is what keeps duplicate sign-in events,
// remounts and concurrent tabs from merging the same guest cart twice.
type MigrationMark struct {
	store  markClient
	window time.Duration
}

// NewMigrationMark wires the mark against the shared Redis client.
func NewMigrationMark(store markClient, window time.Duration) (*MigrationMark, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if window <= 0 {
		return nil, errors.New("mark window must be positive")
	}
	return &MigrationMark{store: store, window: window}, nil
}

// Acquire claims the migration slot for the user. It returns false when the
// mark is already held, meaning a migration ran within the current window.
func (m *MigrationMark) Acquire(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, errors.New("user id is required")
	}
	acquired, err := m.store.SetNX(ctx, m.store.MigrationMarkKey(userID.String()), "1", m.window)
	if err != nil {
		return false, fmt.Errorf("acquiring migration mark: %w", err)
	}
	return acquired, nil
}

// Release frees the mark after a failed migration so the next qualifying
// sign-in retries. Successful migrations keep the mark until it expires.
func (m *MigrationMark) Release(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return errors.New("user id is required")
	}
	if err := m.store.Del(ctx, m.store.MigrationMarkKey(userID.String())); err != nil {
		return fmt.Errorf("releasing migration mark: %w", err)
	}
	return nil
}
