package payloads

import (
	"time"

	"github.com/google/uuid"
)

// CartUpdatedEvent signals that a user's server cart changed. Consumers
// compare UpdatedAt against their own sync cursor to decide whether the
// change is news to them.
type CartUpdatedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	CartID    uuid.UUID `json:"cart_id"`
	ItemCount int       `json:"item_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartMigratedEvent is emitted once per device after a guest cart folds
// into the owner's server cart.
type CartMigratedEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	CartID     uuid.UUID `json:"cart_id"`
	DeviceID   string    `json:"device_id"`
	GuestItems int       `json:"guest_items"`
	MergedAt   time.Time `json:"merged_at"`
}

// UserCreatedEvent announces a fresh registration.
type UserCreatedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
