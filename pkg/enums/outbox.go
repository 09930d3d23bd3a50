package enums

import "fmt"

// OutboxAggregateType identifies which aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateCart OutboxAggregateType = "cart"
	AggregateUser OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCart,
	AggregateUser,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType identifies the change an outbox event describes.
type OutboxEventType string

const (
	EventCartUpdated  OutboxEventType = "cart_updated"
	EventCartMigrated OutboxEventType = "cart_migrated"
	EventUserCreated  OutboxEventType = "user_created"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCartUpdated,
	EventCartMigrated,
	EventUserCreated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
