package cartfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/outbox"
	"github.com/larkspurhq/storefront-backend/pkg/outbox/payloads"
	"github.com/larkspurhq/storefront-backend/pkg/outbox/registry"
)

const feedConsumerName = "cart-feed"

// Dispatcher routes a remote cart change to whichever sessions track the user.
type Dispatcher interface {
	DispatchRemoteChange(ctx context.Context, userID uuid.UUID, changedAt time.Time) error
}

// DispatcherFunc adapts functions to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, userID uuid.UUID, changedAt time.Time) error

// DispatchRemoteChange calls the underlying function.
func (fn DispatcherFunc) DispatchRemoteChange(ctx context.Context, userID uuid.UUID, changedAt time.Time) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, userID, changedAt)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes cart change events from Pub/Sub and hands them to the
// dispatcher while honoring Redis idempotency.
type Service struct {
	subscription *gcppubsub.Subscriber
	dispatcher   Dispatcher
	manager      idempotencyChecker
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewService creates a new cart feed service.
func NewService(subscription *gcppubsub.Subscriber, dispatcher Dispatcher, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("cart feed subscription is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: subscription,
		dispatcher:   dispatcher,
		manager:      manager,
		decoders:     newFeedDecoders(),
		logg:         logg,
	}, nil
}

func newFeedDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventCartUpdated, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.CartUpdatedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	decoders.Register(enums.EventCartMigrated, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.CartMigratedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	return decoders
}

type processResult struct {
	nack bool
}

// Run starts consuming feed messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{
		"message_id": msg.ID,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	change, err := s.buildChange(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(logCtx, "invalid cart feed message")
		return processResult{}
	}
	fields["event_id"] = change.eventID
	fields["event_type"] = change.eventType
	fields["user_id"] = change.userID.String()
	fields["changed_at"] = change.changedAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(change.eventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, feedConsumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.dispatcher.DispatchRemoteChange(logCtx, change.userID, change.changedAt); err != nil {
		s.logg.Error(logCtx, "cart change dispatch failed", err)
		_ = s.manager.Delete(logCtx, feedConsumerName, eventID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "cart change dispatched")
	return processResult{}
}

type remoteChange struct {
	eventID   string
	eventType enums.OutboxEventType
	userID    uuid.UUID
	changedAt time.Time
}

func (s *Service) buildChange(msg *gcppubsub.Message) (*remoteChange, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventTypeStr := strings.TrimSpace(msg.Attributes["event_type"])
	eventType, err := enums.ParseOutboxEventType(eventTypeStr)
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateTypeStr := strings.TrimSpace(msg.Attributes["aggregate_type"])
	aggregateType, err := enums.ParseOutboxAggregateType(aggregateTypeStr)
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	if aggregateType != enums.AggregateCart {
		return nil, fmt.Errorf("aggregate type %s is not a cart", aggregateType)
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	version := stored.Version
	if version == 0 {
		version = 1
	}
	decoded, err := s.decoders.Decode(eventType, version, stored.Data)
	if err != nil {
		return nil, err
	}

	change := &remoteChange{eventID: eventID, eventType: eventType}
	switch event := decoded.(type) {
	case payloads.CartUpdatedEvent:
		change.userID = event.UserID
		change.changedAt = event.UpdatedAt
	case payloads.CartMigratedEvent:
		change.userID = event.UserID
		change.changedAt = event.MergedAt
	default:
		return nil, fmt.Errorf("unexpected payload %T for %s", decoded, eventType)
	}

	if change.userID == uuid.Nil {
		return nil, errors.New("user_id missing")
	}
	if change.changedAt.IsZero() {
		change.changedAt = stored.OccurredAt
	}
	change.changedAt = change.changedAt.UTC()
	return change, nil
}
