package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/pkg/clock"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/metrics"
)

const (
	defaultSyncDebounce = 300 * time.Millisecond
	defaultVerifyDelay  = 2 * time.Second

	defaultRetryAttempts = 3
	defaultRetryBackoff  = 250 * time.Millisecond
	defaultRetryCap      = 2 * time.Second

	syncTriggerDebounce  = "debounce"
	syncTriggerImmediate = "immediate"

	mergeSourceMigration = "migration"
	mergeSourceFeed      = "feed"
)

type remoteCart interface {
	Load(ctx context.Context, userID uuid.UUID) ([]Line, time.Time, error)
	Replace(ctx context.Context, userID uuid.UUID, items []Line) (time.Time, error)
}

type guestCart interface {
	Load(ctx context.Context, deviceID string) ([]Line, error)
	Save(ctx context.Context, deviceID string, items []Line) error
	Clear(ctx context.Context, deviceID string) error
}

type migrationMark interface {
	Acquire(ctx context.Context, userID uuid.UUID) (bool, error)
	Release(ctx context.Context, userID uuid.UUID) error
}

// RetryPolicy bounds the persistence retries for outbound cart writes.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Config carries the engine timings. Zero values fall back to the reference
// timings (300ms debounce, 2s verification delay, 3 write attempts).
type Config struct {
	SyncDebounce time.Duration
	VerifyDelay  time.Duration
	Retry        RetryPolicy
	VerifyReads  bool
}

// ConfigFromApp maps the application configuration onto engine timings.
func ConfigFromApp(cart config.CartConfig, flags config.FeatureFlagsConfig) Config {
	return Config{
		SyncDebounce: cart.SyncDebounce,
		VerifyDelay:  cart.VerifyDelay,
		Retry: RetryPolicy{
			MaxAttempts:    cart.SyncMaxAttempts,
			InitialBackoff: cart.SyncBackoff,
			MaxBackoff:     cart.SyncBackoffMax,
		},
		VerifyReads: flags.CartVerify,
	}
}

func (c Config) normalized() Config {
	if c.SyncDebounce <= 0 {
		c.SyncDebounce = defaultSyncDebounce
	}
	if c.VerifyDelay <= 0 {
		c.VerifyDelay = defaultVerifyDelay
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = RetryPolicy{
			MaxAttempts:    defaultRetryAttempts,
			InitialBackoff: defaultRetryBackoff,
			MaxBackoff:     defaultRetryCap,
		}
	}
	return c
}

// State is a point-in-time snapshot of the engine for readers. Consumers must
// render a neutral loading view while IsLoading or before IsInitialized, never
// an empty cart.
type State struct {
	Items         []Line    `json:"items"`
	IsInitialized bool      `json:"is_initialized"`
	IsLoading     bool      `json:"is_loading"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
}

// EngineParams bundles the engine dependencies.
type EngineParams struct {
	DeviceID string
	Remote   remoteCart
	Guest    guestCart
	Mark     migrationMark
	Clock    clock.Clock
	Logger   *logger.Logger
	Metrics  *metrics.CartMetrics
	Config   Config
}

// Engine owns one device session's cart state. It is the only writer: every
// mutation, merge and accepted feed event funnels through its operations, and
// all outbound persistence is scheduled here. Methods are safe for concurrent
// use.
type Engine struct {
	mu sync.Mutex

	deviceID string
	userID   *uuid.UUID

	items       []Line
	initialized bool
	loading     bool
	dirty       bool
	lastSynced  time.Time

	// epoch increments on every identity change; in-flight loads, flushes and
	// verification reads compare it on completion and drop stale results.
	epoch uint64
	// syncGen increments on every local mutation so a finished flush only
	// clears dirty when no newer revision exists.
	syncGen uint64

	syncTimer   *clock.Timer
	verifyTimer *clock.Timer

	remote  remoteCart
	guest   guestCart
	mark    migrationMark
	clk     clock.Clock
	logg    *logger.Logger
	metrics *metrics.CartMetrics
	cfg     Config
}

// NewEngine validates the dependencies and returns an idle engine. The cart
// is unusable until Initialize or MigrateGuestCart hydrates it.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DeviceID == "" {
		return nil, errors.New("device id is required")
	}
	if params.Remote == nil {
		return nil, errors.New("remote cart store is required")
	}
	if params.Guest == nil {
		return nil, errors.New("guest cart store is required")
	}
	if params.Mark == nil {
		return nil, errors.New("migration mark is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Clock == nil {
		params.Clock = clock.Real()
	}
	return &Engine{
		deviceID: params.DeviceID,
		remote:   params.Remote,
		guest:    params.Guest,
		mark:     params.Mark,
		clk:      params.Clock,
		logg:     params.Logger,
		metrics:  params.Metrics,
		cfg:      params.Config.normalized(),
	}, nil
}

// DeviceID returns the device token the engine session is keyed by.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// UserID returns the authenticated user, or nil for a guest session.
func (e *Engine) UserID() *uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.userID == nil {
		return nil
	}
	id := *e.userID
	return &id
}

// Snapshot returns a copy of the current cart state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Items:         CloneLines(e.items),
		IsInitialized: e.initialized,
		IsLoading:     e.loading,
		LastSyncedAt:  e.lastSynced,
	}
}

// Initialize hydrates the cart from the remote store when userID is set and
// from the guest store otherwise. The gate is idempotent: a cart that is
// already hydrated, or a hydration already in flight, returns immediately
// without touching items. A failed load clears only the loading flag; existing
// items are never discarded on error.
func (e *Engine) Initialize(ctx context.Context, userID *uuid.UUID) error {
	e.mu.Lock()
	if e.loading || e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.loading = true
	e.setIdentityLocked(userID)
	epoch := e.epoch
	e.mu.Unlock()

	if userID != nil {
		if err := e.hydrateRemote(ctx, epoch, *userID); err != nil {
			e.logg.Error(ctx, "cart load failed", err)
			return err
		}
		e.logInitialized(ctx, "user")
		return nil
	}

	items, err := e.guest.Load(ctx, e.deviceID)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.loading = false
		e.mu.Unlock()
		e.logg.Error(ctx, "cart load failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading guest cart")
	}
	e.items = items
	e.initialized = true
	e.loading = false
	e.dirty = false
	e.mu.Unlock()

	e.logInitialized(ctx, "guest")
	return nil
}

// SetIdentity moves the session between identities. Pending local changes are
// flushed under the old identity first so nothing is lost, then the state is
// logically cleared and any in-flight operation from the old identity becomes
// stale. Passing the current identity is a no-op.
func (e *Engine) SetIdentity(ctx context.Context, userID *uuid.UUID) {
	e.mu.Lock()
	if sameIdentity(e.userID, userID) {
		e.mu.Unlock()
		return
	}
	needsFlush := e.initialized && e.dirty
	e.mu.Unlock()

	if needsFlush {
		if err := e.SyncNow(ctx); err != nil {
			e.logg.Warn(e.logg.WithField(ctx, "device_id", e.deviceID),
				"flushing cart before identity change failed")
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sameIdentity(e.userID, userID) {
		return
	}
	e.stopTimersLocked()
	e.epoch++
	e.setIdentityLocked(userID)
	e.items = nil
	e.initialized = false
	e.loading = false
	e.dirty = false
	e.lastSynced = time.Time{}
}

// AddItem appends the line, or adds its quantity onto an existing line with
// the same product identity. The mutation applies locally first, then a
// debounced sync and, for authenticated sessions, a delayed verification read
// are scheduled.
func (e *Engine) AddItem(ctx context.Context, item Line) error {
	if item.ProductID == uuid.Nil || item.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and variant are required")
	}
	if item.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if item.PricePerUnit.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price per unit must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not initialized")
	}

	identity := item.Identity()
	updated := false
	for i := range e.items {
		if e.items[i].Identity() == identity {
			e.items[i] = e.items[i].WithQuantity(e.items[i].Quantity + item.Quantity)
			updated = true
			break
		}
	}
	if !updated {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		e.items = append(e.items, item.Recalculated())
	}

	e.markDirtyLocked()
	e.scheduleSyncLocked()
	e.scheduleVerifyLocked()
	return nil
}

// RemoveItem deletes the line with the given product identity. Removing an
// absent line is a no-op.
func (e *Engine) RemoveItem(ctx context.Context, productID, variantID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not initialized")
	}

	identity := Identity{ProductID: productID, VariantID: variantID}
	for i := range e.items {
		if e.items[i].Identity() == identity {
			e.items = append(e.items[:i], e.items[i+1:]...)
			e.markDirtyLocked()
			e.scheduleSyncLocked()
			return nil
		}
	}
	return nil
}

// SetQuantity pins the line with the given product identity to an absolute
// quantity. A quantity of zero or less removes the line.
func (e *Engine) SetQuantity(ctx context.Context, productID, variantID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return e.RemoveItem(ctx, productID, variantID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not initialized")
	}

	identity := Identity{ProductID: productID, VariantID: variantID}
	for i := range e.items {
		if e.items[i].Identity() == identity {
			e.items[i] = e.items[i].WithQuantity(quantity)
			e.markDirtyLocked()
			e.scheduleSyncLocked()
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
}

// ScheduleSync arms the debounced flush without mutating the cart. Rapid
// calls inside the window coalesce into a single outbound write carrying the
// state at flush time.
func (e *Engine) ScheduleSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	e.scheduleSyncLocked()
}

// SyncNow flushes pending local state immediately, bypassing the debounce.
// A clean cart is a no-op.
func (e *Engine) SyncNow(ctx context.Context) error {
	e.mu.Lock()
	if e.syncTimer != nil {
		e.syncTimer.Stop()
	}
	e.mu.Unlock()
	return e.flush(ctx, syncTriggerImmediate)
}

// MigrationOutcome reports what MigrateGuestCart did. Migrated is false when
// the guest cart was empty or the mark window already consumed this user's
// run, in which case the session hydrated from the remote cart as-is.
type MigrationOutcome struct {
	Migrated    bool
	GuestItems  int
	MergedItems int
	MergedAt    time.Time
}

// MigrateGuestCart folds the device's guest cart into the user's remote cart.
// The migration mark bounds it to one run per user per window; duplicate
// sign-ins inside the window fall back to a plain remote load. On success the
// guest store is cleared and the mark kept; on failure the guest cart and the
// next sign-in's chance to retry are both preserved.
func (e *Engine) MigrateGuestCart(ctx context.Context, userID uuid.UUID) (MigrationOutcome, error) {
	if userID == uuid.Nil {
		return MigrationOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	e.mu.Lock()
	if e.loading || e.initialized {
		e.mu.Unlock()
		return MigrationOutcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cart already hydrated")
	}
	e.loading = true
	e.setIdentityLocked(&userID)
	epoch := e.epoch
	e.mu.Unlock()

	guestItems, err := e.guest.Load(ctx, e.deviceID)
	if err != nil {
		e.finishLoadFailure(epoch)
		e.logg.Error(ctx, "loading guest cart for migration failed", err)
		return MigrationOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading guest cart")
	}

	if len(guestItems) == 0 {
		if err := e.hydrateRemote(ctx, epoch, userID); err != nil {
			e.logg.Error(ctx, "cart load failed", err)
			return MigrationOutcome{}, err
		}
		e.logInitialized(ctx, "user")
		return MigrationOutcome{}, nil
	}

	acquired, err := e.mark.Acquire(ctx, userID)
	if err != nil {
		e.finishLoadFailure(epoch)
		e.logg.Error(ctx, "acquiring migration mark failed", err)
		return MigrationOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring migration mark")
	}
	if !acquired {
		logCtx := e.logg.WithField(ctx, "user_id", userID.String())
		e.logg.Info(logCtx, "guest cart migration already ran in this window, loading remote cart")
		if err := e.hydrateRemote(ctx, epoch, userID); err != nil {
			e.logg.Error(ctx, "cart load failed", err)
			return MigrationOutcome{}, err
		}
		e.logInitialized(ctx, "user")
		return MigrationOutcome{}, nil
	}

	remoteItems, _, err := e.remote.Load(ctx, userID)
	if err != nil {
		e.releaseMark(ctx, userID)
		e.finishLoadFailure(epoch)
		e.logg.Error(ctx, "loading remote cart for migration failed", err)
		return MigrationOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading remote cart")
	}

	merged := MergeAdditive(remoteItems, guestItems)
	syncedAt, err := e.persistRemote(ctx, userID, merged)
	if err != nil {
		e.releaseMark(ctx, userID)
		e.finishLoadFailure(epoch)
		e.logg.Error(ctx, "guest cart migration failed, guest cart preserved", err)
		return MigrationOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting migrated cart")
	}

	if err := e.guest.Clear(ctx, e.deviceID); err != nil {
		// the TTL reaps the leftover snapshot; the mark keeps it from merging again
		e.logg.Warn(e.logg.WithField(ctx, "device_id", e.deviceID),
			"clearing guest cart after migration failed")
	}
	e.metrics.IncMerge(mergeSourceMigration)

	outcome := MigrationOutcome{
		Migrated:    true,
		GuestItems:  len(guestItems),
		MergedItems: len(merged),
		MergedAt:    syncedAt,
	}

	e.mu.Lock()
	if e.epoch != epoch {
		// the session moved on, but the remote merge is durable
		e.mu.Unlock()
		return outcome, nil
	}
	e.items = merged
	e.lastSynced = syncedAt
	e.initialized = true
	e.loading = false
	e.dirty = false
	e.mu.Unlock()

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"guest_items":  len(guestItems),
		"merged_items": len(merged),
	})
	e.logg.Info(logCtx, "guest cart migrated")
	return outcome, nil
}

// HandleRemoteChange reconciles an inbound change-feed event. Events whose
// timestamp does not exceed lastSyncedAt are stale and discarded, which also
// swallows the echo of this session's own flushes. A fresh event fetches the
// authoritative remote cart and folds it together with the local items using
// the additive merge, then advances the sync cursor.
func (e *Engine) HandleRemoteChange(ctx context.Context, updatedAt time.Time) error {
	e.mu.Lock()
	if !e.initialized || e.loading || e.userID == nil {
		e.mu.Unlock()
		return nil
	}
	if !updatedAt.After(e.lastSynced) {
		e.metrics.IncFeedStale()
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	userID := *e.userID
	e.mu.Unlock()

	remoteItems, loadedAt, err := e.remote.Load(ctx, userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}
	if err != nil {
		e.logg.Error(ctx, "fetching remote cart for change event failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading remote cart")
	}
	if !updatedAt.After(e.lastSynced) {
		// our own flush advanced the cursor while we were fetching
		e.metrics.IncFeedStale()
		return nil
	}

	e.items = MergeAdditive(remoteItems, e.items)
	cursor := updatedAt
	if loadedAt.After(cursor) {
		cursor = loadedAt
	}
	if cursor.After(e.lastSynced) {
		e.lastSynced = cursor
	}
	e.metrics.IncMerge(mergeSourceFeed)
	if e.dirty {
		// the merge folded unflushed local lines into items; push them out
		e.scheduleSyncLocked()
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":    userID.String(),
		"item_count": len(e.items),
	})
	e.logg.Info(logCtx, "remote cart change merged")
	return nil
}

// Close flushes pending state and stops the engine's timers. Used when the
// hub evicts an idle session.
func (e *Engine) Close(ctx context.Context) error {
	err := e.SyncNow(ctx)
	e.mu.Lock()
	e.stopTimersLocked()
	e.mu.Unlock()
	return err
}

func (e *Engine) flush(ctx context.Context, trigger string) error {
	e.mu.Lock()
	if !e.initialized || !e.dirty {
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	gen := e.syncGen
	items := CloneLines(e.items)
	var userID *uuid.UUID
	if e.userID != nil {
		id := *e.userID
		userID = &id
	}
	e.mu.Unlock()

	start := e.clk.Now()
	var syncedAt time.Time
	var err error
	if userID != nil {
		syncedAt, err = e.persistRemote(ctx, *userID, items)
	} else {
		err = e.persistGuest(ctx, items)
	}
	e.metrics.ObserveSyncDuration(trigger, e.clk.Now().Sub(start))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}
	if err != nil {
		e.metrics.IncSyncFailure(trigger)
		e.logg.Error(ctx, "cart sync failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "syncing cart")
	}
	e.metrics.IncSyncSuccess(trigger)
	if e.syncGen == gen {
		e.dirty = false
	}
	if userID != nil && syncedAt.After(e.lastSynced) {
		e.lastSynced = syncedAt
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"trigger":    trigger,
		"item_count": len(items),
	})
	e.logg.Info(logCtx, "cart synced")
	return nil
}

func (e *Engine) verify(ctx context.Context) {
	e.mu.Lock()
	if !e.initialized || e.loading || e.userID == nil || e.dirty {
		e.mu.Unlock()
		return
	}
	epoch := e.epoch
	userID := *e.userID
	e.mu.Unlock()

	remoteItems, loadedAt, err := e.remote.Load(ctx, userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	if err != nil {
		e.logg.Warn(ctx, "cart verification read failed")
		return
	}
	if e.dirty {
		// a local mutation landed while we were reading; its flush supersedes
		return
	}
	if SameItems(e.items, remoteItems) {
		return
	}

	e.metrics.IncVerificationMismatch()
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"local_items":  len(e.items),
		"remote_items": len(remoteItems),
	})
	e.logg.Warn(logCtx, "cart verification mismatch, adopting remote state")

	e.items = remoteItems
	if loadedAt.After(e.lastSynced) {
		e.lastSynced = loadedAt
	}
}

func (e *Engine) persistRemote(ctx context.Context, userID uuid.UUID, items []Line) (time.Time, error) {
	var lastErr error
	backoff := e.cfg.Retry.InitialBackoff
	for attempt := 1; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		syncedAt, err := e.remote.Replace(ctx, userID, items)
		if err == nil {
			return syncedAt, nil
		}
		lastErr = err
		if attempt == e.cfg.Retry.MaxAttempts {
			break
		}
		if backoff > 0 {
			e.clk.Sleep(backoff)
		}
		backoff = nextBackoff(backoff, e.cfg.Retry.MaxBackoff)
	}
	return time.Time{}, lastErr
}

func (e *Engine) persistGuest(ctx context.Context, items []Line) error {
	var lastErr error
	backoff := e.cfg.Retry.InitialBackoff
	for attempt := 1; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		err := e.guest.Save(ctx, e.deviceID, items)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == e.cfg.Retry.MaxAttempts {
			break
		}
		if backoff > 0 {
			e.clk.Sleep(backoff)
		}
		backoff = nextBackoff(backoff, e.cfg.Retry.MaxBackoff)
	}
	return lastErr
}

func nextBackoff(current, limit time.Duration) time.Duration {
	if current <= 0 {
		return 0
	}
	next := current * 2
	if limit > 0 && next > limit {
		next = limit
	}
	return next
}

func (e *Engine) hydrateRemote(ctx context.Context, epoch uint64, userID uuid.UUID) error {
	items, loadedAt, err := e.remote.Load(ctx, userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil
	}
	if err != nil {
		e.loading = false
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading remote cart")
	}
	e.items = items
	if loadedAt.After(e.lastSynced) {
		e.lastSynced = loadedAt
	}
	e.initialized = true
	e.loading = false
	e.dirty = false
	return nil
}

func (e *Engine) finishLoadFailure(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch == epoch {
		e.loading = false
	}
}

func (e *Engine) releaseMark(ctx context.Context, userID uuid.UUID) {
	if err := e.mark.Release(ctx, userID); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "user_id", userID.String()),
			"releasing migration mark failed")
	}
}

func (e *Engine) markDirtyLocked() {
	e.dirty = true
	e.syncGen++
}

func (e *Engine) scheduleSyncLocked() {
	if e.syncTimer != nil {
		e.syncTimer.Reset(e.cfg.SyncDebounce)
		return
	}
	e.syncTimer = e.clk.AfterFunc(e.cfg.SyncDebounce, func() {
		_ = e.flush(context.Background(), syncTriggerDebounce)
	})
}

func (e *Engine) scheduleVerifyLocked() {
	if !e.cfg.VerifyReads || e.userID == nil {
		return
	}
	if e.verifyTimer != nil {
		e.verifyTimer.Reset(e.cfg.VerifyDelay)
		return
	}
	e.verifyTimer = e.clk.AfterFunc(e.cfg.VerifyDelay, func() {
		e.verify(context.Background())
	})
}

func (e *Engine) stopTimersLocked() {
	if e.syncTimer != nil {
		e.syncTimer.Stop()
	}
	if e.verifyTimer != nil {
		e.verifyTimer.Stop()
	}
}

func (e *Engine) setIdentityLocked(userID *uuid.UUID) {
	if userID == nil {
		e.userID = nil
		return
	}
	id := *userID
	e.userID = &id
}

func (e *Engine) logInitialized(ctx context.Context, source string) {
	e.mu.Lock()
	count := len(e.items)
	e.mu.Unlock()
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"source":     source,
		"item_count": count,
	})
	e.logg.Info(logCtx, "cart initialized")
}

func sameIdentity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
