package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/outbox"
	"github.com/larkspurhq/storefront-backend/pkg/outbox/payloads"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	records := `
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`
	items := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  line_total NUMERIC NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(records).Error)
	require.NoError(t, conn.Exec(items).Error)
	return conn
}

type gormTxRunner struct {
	conn *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

type captureEmitter struct {
	events []outbox.DomainEvent
}

func (c *captureEmitter) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	c.events = append(c.events, event)
	return nil
}

func newTestRecordStore(t *testing.T, emitter outboxEmitter) *RecordStore {
	t.Helper()
	conn := setupCartTestDB(t)
	store, err := NewRecordStore(conn, gormTxRunner{conn: conn}, emitter)
	require.NoError(t, err)
	return store
}

func TestRecordStoreLoadUnknownUserReturnsEmptyCart(t *testing.T) {
	store := newTestRecordStore(t, nil)

	lines, syncedAt, err := store.Load(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.True(t, syncedAt.IsZero())
}

func TestRecordStoreReplaceRoundTrips(t *testing.T) {
	store := newTestRecordStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	first := line(uuid.New(), uuid.New(), 2, "10.00")
	second := line(uuid.New(), uuid.New(), 1, "4.50")

	syncedAt, err := store.Replace(ctx, userID, []Line{first, second})
	require.NoError(t, err)
	require.False(t, syncedAt.IsZero())

	lines, loadedAt, err := store.Load(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, first.ProductID, lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].TotalPrice.Equal(first.TotalPrice))
	assert.Equal(t, second.ProductID, lines[1].ProductID)
	assert.WithinDuration(t, syncedAt, loadedAt, time.Second)
}

func TestRecordStoreReplaceOverwritesPreviousLines(t *testing.T) {
	store := newTestRecordStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.Replace(ctx, userID, []Line{
		line(uuid.New(), uuid.New(), 2, "10.00"),
		line(uuid.New(), uuid.New(), 5, "1.00"),
	})
	require.NoError(t, err)

	replacement := line(uuid.New(), uuid.New(), 1, "3.00")
	_, err = store.Replace(ctx, userID, []Line{replacement})
	require.NoError(t, err)

	lines, _, err := store.Load(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, replacement.ProductID, lines[0].ProductID)
}

func TestRecordStoreReplaceEmptyClearsCart(t *testing.T) {
	store := newTestRecordStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.Replace(ctx, userID, []Line{line(uuid.New(), uuid.New(), 1, "2.00")})
	require.NoError(t, err)

	_, err = store.Replace(ctx, userID, nil)
	require.NoError(t, err)

	lines, loadedAt, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.False(t, loadedAt.IsZero())
}

func TestRecordStoreReplaceQueuesChangeEvent(t *testing.T) {
	emitter := &captureEmitter{}
	store := newTestRecordStore(t, emitter)
	ctx := context.Background()
	userID := uuid.New()

	syncedAt, err := store.Replace(ctx, userID, []Line{line(uuid.New(), uuid.New(), 3, "2.50")})
	require.NoError(t, err)

	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, enums.EventCartUpdated, event.EventType)
	assert.Equal(t, enums.AggregateCart, event.AggregateType)
	assert.NotEqual(t, uuid.Nil, event.AggregateID)

	payload, ok := event.Data.(payloads.CartUpdatedEvent)
	require.True(t, ok, "unexpected payload type %T", event.Data)
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, 1, payload.ItemCount)
	assert.Equal(t, syncedAt, payload.UpdatedAt)
}

func TestRecordStoreQueueMigrationEvent(t *testing.T) {
	emitter := &captureEmitter{}
	store := newTestRecordStore(t, emitter)
	ctx := context.Background()
	userID := uuid.New()

	mergedAt, err := store.Replace(ctx, userID, []Line{line(uuid.New(), uuid.New(), 3, "2.50")})
	require.NoError(t, err)

	require.NoError(t, store.QueueMigrationEvent(ctx, userID, "device-1", 2, mergedAt))

	require.Len(t, emitter.events, 2)
	event := emitter.events[1]
	assert.Equal(t, enums.EventCartMigrated, event.EventType)
	assert.Equal(t, enums.AggregateCart, event.AggregateType)

	payload, ok := event.Data.(payloads.CartMigratedEvent)
	require.True(t, ok, "unexpected payload type %T", event.Data)
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, "device-1", payload.DeviceID)
	assert.Equal(t, 2, payload.GuestItems)
	assert.Equal(t, mergedAt, payload.MergedAt)
	assert.Equal(t, event.AggregateID, payload.CartID)
}

func TestRecordStoreQueueMigrationEventUnknownUserFails(t *testing.T) {
	emitter := &captureEmitter{}
	store := newTestRecordStore(t, emitter)

	err := store.QueueMigrationEvent(context.Background(), uuid.New(), "device-1", 1, time.Now())

	require.Error(t, err)
	assert.Empty(t, emitter.events)
}
