package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/larkspurhq/storefront-backend/pkg/db/models"
	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/outbox"
	"github.com/larkspurhq/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RecordStore persists the authoritative per-user cart in Postgres. Every
// Replace queues a change-feed event in the same transaction as the write.
type RecordStore struct {
	conn   *gorm.DB
	tx     txRunner
	outbox outboxEmitter
}

// NewRecordStore binds the store to the shared connection and transaction
// runner. The emitter may be nil when change-feed publication is not wired
// (tests, tooling).
func NewRecordStore(conn *gorm.DB, runner txRunner, emitter outboxEmitter) (*RecordStore, error) {
	if conn == nil {
		return nil, errors.New("db connection is required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &RecordStore{conn: conn, tx: runner, outbox: emitter}, nil
}

// Load returns the user's cart lines and the record's server timestamp.
// A user without a cart record gets an empty cart, not an error.
func (s *RecordStore) Load(ctx context.Context, userID uuid.UUID) ([]Line, time.Time, error) {
	var record models.CartRecord
	err := s.conn.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("user_id = ?", userID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return linesFromItems(record.Items), record.UpdatedAt, nil
}

// Replace overwrites the user's cart with the given lines and returns the new
// server timestamp. The record row, its items and the outbox event commit
// atomically so the feed never announces a write that did not land.
func (s *RecordStore) Replace(ctx context.Context, userID uuid.UUID, items []Line) (time.Time, error) {
	syncedAt := time.Now().UTC().Truncate(time.Microsecond)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := findOrCreateRecord(tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", record.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		rows := itemRows(record.ID, items)
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.CartRecord{}).
			Where("id = ?", record.ID).
			Update("updated_at", syncedAt).Error; err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartUpdated,
			AggregateType: enums.AggregateCart,
			AggregateID:   record.ID,
			Data: payloads.CartUpdatedEvent{
				UserID:    userID,
				CartID:    record.ID,
				ItemCount: len(items),
				UpdatedAt: syncedAt,
			},
			Version:    1,
			OccurredAt: syncedAt,
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	return syncedAt, nil
}

// QueueMigrationEvent records that a guest cart folded into the user's cart.
// The cart rows themselves were already written by the migration's Replace;
// this queues the audit event for the feed. A nil emitter makes it a no-op.
func (s *RecordStore) QueueMigrationEvent(ctx context.Context, userID uuid.UUID, deviceID string, guestItems int, mergedAt time.Time) error {
	if s.outbox == nil {
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var record models.CartRecord
		if err := tx.Where("user_id = ?", userID).First(&record).Error; err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartMigrated,
			AggregateType: enums.AggregateCart,
			AggregateID:   record.ID,
			Data: payloads.CartMigratedEvent{
				UserID:     userID,
				CartID:     record.ID,
				DeviceID:   deviceID,
				GuestItems: guestItems,
				MergedAt:   mergedAt,
			},
			Version:    1,
			OccurredAt: mergedAt,
		})
	})
}

func findOrCreateRecord(tx *gorm.DB, userID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := tx.Where("user_id = ?", userID).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	record = models.CartRecord{ID: uuid.New(), UserID: userID}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func itemRows(cartID uuid.UUID, items []Line) []models.CartItem {
	rows := make([]models.CartItem, 0, len(items))
	for position, item := range items {
		row := models.CartItem{
			ID:        item.ID,
			CartID:    cartID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.PricePerUnit,
			LineTotal: item.TotalPrice,
			Position:  position,
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		rows = append(rows, row)
	}
	return rows
}

func linesFromItems(items []models.CartItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Quantity:     item.Quantity,
			PricePerUnit: item.UnitPrice,
			TotalPrice:   item.LineTotal,
		})
	}
	return lines
}
