package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/internal/hydration"
	"github.com/larkspurhq/storefront-backend/pkg/enums"
)

// session pairs one device's hydration machine with its cart engine. The op
// mutex serializes cart mutations and resolution handling for the device;
// seenAt is atomic so the idle sweep never contends with a running operation.
type session struct {
	deviceID    string
	machine     *hydration.Machine
	engine      *cart.Engine
	hub         *Hub
	unsubscribe func()

	mu     sync.Mutex
	seenAt atomic.Int64
}

func (s *session) touch(now time.Time) {
	s.seenAt.Store(now.UnixNano())
}

func (s *session) lastSeen() time.Time {
	return time.Unix(0, s.seenAt.Load())
}

func (s *session) view() SessionView {
	return SessionView{
		DeviceID:  s.deviceID,
		Hydration: s.machine.State(),
		Cart:      s.engine.Snapshot(),
	}
}

// applyResolution is the machine's subscriber. It runs on every transition of
// the resolved identity and drives the engine to match: sign-in folds the
// guest cart into the user's cart, sign-out and session errors hydrate as
// guest. Suppressed machine notifications never reach here, so a token
// refresh leaves the engine untouched.
func (s *session) applyResolution(ctx context.Context, state hydration.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyResolutionLocked(ctx, state)
}

// retryHydration re-runs the engine side of an already-resolved session when
// a previous hydration load failed. The machine suppresses same-identity
// resolutions, so explicit triggers land here instead of the subscriber.
func (s *session) retryHydration(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.State()
	if !state.Resolved() {
		return
	}
	snapshot := s.engine.Snapshot()
	if snapshot.IsInitialized || snapshot.IsLoading {
		return
	}
	s.applyResolutionLocked(ctx, state)
}

func (s *session) applyResolutionLocked(ctx context.Context, state hydration.State) {
	var target *uuid.UUID
	if state.Status == enums.HydrationAuthenticated {
		target = state.UserID
	}

	if s.engine.Snapshot().IsInitialized && sameIdentity(s.engine.UserID(), target) {
		return
	}

	s.engine.SetIdentity(ctx, target)

	if target == nil {
		if err := s.engine.Initialize(ctx, nil); err != nil {
			s.hub.logg.Warn(s.hub.logg.WithFields(ctx, map[string]any{
				"device_id": s.deviceID,
				"error":     err.Error(),
			}), "guest cart hydration failed")
		}
		return
	}

	outcome, err := s.engine.MigrateGuestCart(ctx, *target)
	if err != nil {
		s.hub.logg.Warn(s.hub.logg.WithFields(ctx, map[string]any{
			"device_id": s.deviceID,
			"user_id":   target.String(),
			"error":     err.Error(),
		}), "cart hydration after sign-in failed")
		return
	}
	if outcome.Migrated {
		s.hub.recordMigration(ctx, *target, s.deviceID, outcome)
	}
}

func (s *session) shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close(ctx)
}

func sameIdentity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
