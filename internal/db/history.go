// internal/db/history.go
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/outbox"
)

// GetProductHistory: wszystkie wpisy produktu, najnowsze pierwsze.
func (h *Handle) GetProductHistory(ctx context.Context, productID string) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	err := h.DB.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at desc").Order("id asc").
		Find(&out).Error
	return out, err
}

func (h *Handle) GetSalesHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	err := h.DB.WithContext(ctx).
		Where("action_type = ?", model.ActionSale).
		Order("created_at desc").Order("id asc").
		Find(&out).Error
	return out, err
}

// SaveHistoryEntry nadaje id/created_at, jeśli brak, i kolejkuje insert.
func (h *Handle) SaveHistoryEntry(ctx context.Context, e model.HistoryEntry) (model.HistoryEntry, error) {
	now := h.now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.SyncStatus = model.SyncPending
	e.Origin = h.Stamp()

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsertByID).Create(&e).Error; err != nil {
			return err
		}
		_, err := enqueue(tx, outbox.HistoryUpsert{Entry: e}, now)
		return err
	})
	return e, err
}

func (h *Handle) DeleteHistoryEntry(ctx context.Context, id string) error {
	now := h.now()
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&model.HistoryEntry{}).Error; err != nil {
			return err
		}
		_, err := enqueue(tx, outbox.HistoryDelete{ID: id}, now)
		return err
	})
}

// PurgeHistoryRange usuwa lokalną kopię wpisów z [from, to). Zero-value from/to
// oznacza brak ograniczenia z tej strony. Zdalny magazyn robi to sam.
func (h *Handle) PurgeHistoryRange(ctx context.Context, from, to time.Time) (int64, error) {
	q := createdIn(h.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}), from, to)
	res := q.Delete(&model.HistoryEntry{})
	return res.RowsAffected, res.Error
}

// HistoryIDsInRange: id wpisów z [from, to); granice jak w PurgeHistoryRange.
func (h *Handle) HistoryIDsInRange(ctx context.Context, from, to time.Time) ([]string, error) {
	q := createdIn(h.DB.WithContext(ctx).Model(&model.HistoryEntry{}), from, to)
	var ids []string
	err := q.Pluck("id", &ids).Error
	return ids, err
}

// createdIn zawęża zapytanie do created_at w [from, to). SQLite porównuje
// czasy jako tekst, a zapisujemy je w UTC, więc granice też idą w UTC.
func createdIn(q *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	return q
}
