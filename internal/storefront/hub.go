package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/internal/hydration"
	"github.com/larkspurhq/storefront-backend/pkg/clock"
	"github.com/larkspurhq/storefront-backend/pkg/enums"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/metrics"
)

const (
	defaultIdleTTL       = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// EngineFactory builds the cart engine for a new device session.
type EngineFactory func(deviceID string) (*cart.Engine, error)

type migrationRecorder interface {
	QueueMigrationEvent(ctx context.Context, userID uuid.UUID, deviceID string, guestItems int, mergedAt time.Time) error
}

// HubParams bundles the hub dependencies.
type HubParams struct {
	Engines    EngineFactory
	Recorder   migrationRecorder
	Clock      clock.Clock
	Logger     *logger.Logger
	Metrics    *metrics.CartMetrics
	IdleTTL    time.Duration
	SweepEvery time.Duration
}

// Hub holds one reconciliation session per device: a hydration machine wired
// to a cart engine. All cart traffic for a device funnels through its session
// so operations are serialized, engine initialization runs only from the
// machine's resolved notifications, and feed events route to sessions by user
// ID. Idle sessions are drained and evicted on a sweep cadence.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	engines    EngineFactory
	recorder   migrationRecorder
	clk        clock.Clock
	logg       *logger.Logger
	metrics    *metrics.CartMetrics
	idleTTL    time.Duration
	sweepEvery time.Duration
}

// NewHub validates the dependencies and returns an empty hub.
func NewHub(params HubParams) (*Hub, error) {
	if params.Engines == nil {
		return nil, errors.New("engine factory is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Clock == nil {
		params.Clock = clock.Real()
	}
	if params.IdleTTL <= 0 {
		params.IdleTTL = defaultIdleTTL
	}
	if params.SweepEvery <= 0 {
		params.SweepEvery = defaultSweepInterval
	}
	return &Hub{
		sessions:   make(map[string]*session),
		engines:    params.Engines,
		recorder:   params.Recorder,
		clk:        params.Clock,
		logg:       params.Logger,
		metrics:    params.Metrics,
		idleTTL:    params.IdleTTL,
		sweepEvery: params.SweepEvery,
	}, nil
}

// SessionView is the read model served to the presentation layer. While
// Hydration.Status is initializing or Cart.IsInitialized is false the client
// must render a loading view, never an empty cart.
type SessionView struct {
	DeviceID  string          `json:"device_id"`
	Hydration hydration.State `json:"hydration"`
	Cart      cart.State      `json:"cart"`
}

// ResolveSession records the session source's answer for a device and returns
// the post-transition view. It opens the device's session on first contact;
// the machine's resolved notification drives the engine, so a sign-in
// migrates the guest cart, a sign-out re-hydrates as guest, and a token
// refresh changes nothing. Hydration load failures come back as view flags,
// not errors.
func (h *Hub) ResolveSession(ctx context.Context, deviceID string, userID *uuid.UUID) (SessionView, error) {
	sess, err := h.ensureSession(ctx, deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.machine.Resolve(ctx, userID)
	sess.retryHydration(ctx)
	return sess.view(), nil
}

// FailSession records an irrecoverable session fetch failure for a device.
// The machine resolves to its error state and the cart hydrates as guest so
// the shopper is not stuck on a loading view.
func (h *Hub) FailSession(ctx context.Context, deviceID string, cause error) (SessionView, error) {
	sess, err := h.ensureSession(ctx, deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.machine.Fail(ctx, cause)
	sess.retryHydration(ctx)
	return sess.view(), nil
}

// View returns the device's current state. An unknown device reads as an
// unresolved session; no session is opened.
func (h *Hub) View(deviceID string) SessionView {
	h.mu.Lock()
	sess, ok := h.sessions[deviceID]
	h.mu.Unlock()
	if !ok {
		return SessionView{
			DeviceID:  deviceID,
			Hydration: hydration.State{Status: enums.HydrationInitializing},
		}
	}
	sess.touch(h.clk.Now())
	return sess.view()
}

// AddItem applies an optimistic add to the device's cart.
func (h *Hub) AddItem(ctx context.Context, deviceID string, item cart.Line) (SessionView, error) {
	sess, err := h.lookup(deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.touch(h.clk.Now())
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.engine.AddItem(ctx, item); err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// RemoveItem drops the line with the given product identity, if present.
func (h *Hub) RemoveItem(ctx context.Context, deviceID string, productID, variantID uuid.UUID) (SessionView, error) {
	sess, err := h.lookup(deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.touch(h.clk.Now())
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.engine.RemoveItem(ctx, productID, variantID); err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// SetQuantity pins the quantity of the line with the given product identity.
func (h *Hub) SetQuantity(ctx context.Context, deviceID string, productID, variantID uuid.UUID, quantity int) (SessionView, error) {
	sess, err := h.lookup(deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.touch(h.clk.Now())
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.engine.SetQuantity(ctx, productID, variantID, quantity); err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// SyncNow flushes the device's pending cart changes immediately.
func (h *Hub) SyncNow(ctx context.Context, deviceID string) (SessionView, error) {
	sess, err := h.lookup(deviceID)
	if err != nil {
		return SessionView{}, err
	}
	sess.touch(h.clk.Now())
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.engine.SyncNow(ctx); err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// DispatchRemoteChange routes a change feed event to every live session of
// the user. An event for a user with no session here is counted and dropped;
// the engines decide staleness against their own cursors.
func (h *Hub) DispatchRemoteChange(ctx context.Context, userID uuid.UUID, changedAt time.Time) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	h.mu.Lock()
	var targets []*session
	for _, sess := range h.sessions {
		owner := sess.engine.UserID()
		if owner != nil && *owner == userID {
			targets = append(targets, sess)
		}
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		h.metrics.IncFeedIgnored()
		return nil
	}

	var errs []error
	for _, sess := range targets {
		sess.mu.Lock()
		err := sess.engine.HandleRemoteChange(ctx, changedAt)
		sess.mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.deviceID, err))
		}
	}
	return multierr.Combine(errs...)
}

// Run sweeps idle sessions on the configured cadence until the context is
// canceled.
func (h *Hub) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := h.clk.NewTicker(h.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logg.Info(ctx, "session sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			h.sweepIdle(ctx)
		}
	}
}

// Close drains every session with a final flush and stops accepting new ones.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		h.metrics.DecActiveSessions()
		if err := sess.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.deviceID, err))
		}
	}
	return multierr.Combine(errs...)
}

// ActiveSessions reports how many device sessions are live.
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) ensureSession(ctx context.Context, deviceID string) (*session, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "storefront hub is shut down")
	}
	if sess, ok := h.sessions[deviceID]; ok {
		sess.touch(h.clk.Now())
		return sess, nil
	}

	machine, err := hydration.NewMachine(h.logg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building hydration machine")
	}
	engine, err := h.engines(deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building cart engine")
	}

	sess := &session{
		deviceID: deviceID,
		machine:  machine,
		engine:   engine,
		hub:      h,
	}
	sess.touch(h.clk.Now())
	sess.unsubscribe = machine.Subscribe(func(cbCtx context.Context, state hydration.State) {
		sess.applyResolution(cbCtx, state)
	})
	h.sessions[deviceID] = sess
	h.metrics.IncActiveSessions()
	h.logg.Info(h.logg.WithField(ctx, "device_id", deviceID), "device session opened")
	return sess, nil
}

func (h *Hub) lookup(deviceID string) (*session, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "storefront hub is shut down")
	}
	sess, ok := h.sessions[deviceID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "device session is not hydrated")
	}
	return sess, nil
}

func (h *Hub) sweepIdle(ctx context.Context) {
	cutoff := h.clk.Now().Add(-h.idleTTL)

	h.mu.Lock()
	var evicted []*session
	for deviceID, sess := range h.sessions {
		if sess.lastSeen().After(cutoff) {
			continue
		}
		delete(h.sessions, deviceID)
		evicted = append(evicted, sess)
	}
	h.mu.Unlock()

	for _, sess := range evicted {
		h.metrics.DecActiveSessions()
		if err := sess.shutdown(ctx); err != nil {
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"device_id": sess.deviceID,
				"error":     err.Error(),
			}), "draining evicted session failed")
			continue
		}
		h.logg.Info(h.logg.WithField(ctx, "device_id", sess.deviceID), "idle session evicted")
	}
}

func (h *Hub) recordMigration(ctx context.Context, userID uuid.UUID, deviceID string, outcome cart.MigrationOutcome) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.QueueMigrationEvent(ctx, userID, deviceID, outcome.GuestItems, outcome.MergedAt); err != nil {
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"device_id": deviceID,
			"user_id":   userID.String(),
			"error":     err.Error(),
		}), "queueing migration event failed")
	}
}
