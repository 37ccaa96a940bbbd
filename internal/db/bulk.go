// internal/db/bulk.go
package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/outbox"
)

const bulkBatch = 200

// BulkPutProducts: tylko dla danych z chmury: upsert ze statusem synced, bez outboxa.
func (h *Handle) BulkPutProducts(ctx context.Context, list []model.Product) error {
	if len(list) == 0 {
		return nil
	}
	rows := make([]model.Product, len(list))
	for i, p := range list {
		p.SyncStatus = model.SyncSynced
		rows[i] = p
	}
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsertByID).CreateInBatches(&rows, bulkBatch).Error; err != nil {
			return fmt.Errorf("bulk put products: %w", err)
		}
		return nil
	})
}

func (h *Handle) BulkPutHistory(ctx context.Context, list []model.HistoryEntry) error {
	if len(list) == 0 {
		return nil
	}
	rows := make([]model.HistoryEntry, len(list))
	for i, e := range list {
		e.SyncStatus = model.SyncSynced
		rows[i] = e
	}
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsertByID).CreateInBatches(&rows, bulkBatch).Error; err != nil {
			return fmt.Errorf("bulk put history: %w", err)
		}
		return nil
	})
}

// MarkAsSynced ustawia sync_status=synced; brak rekordu nie jest błędem.
func (h *Handle) MarkAsSynced(ctx context.Context, table outbox.Table, id string) error {
	var m any
	switch table {
	case outbox.TableProducts:
		m = &model.Product{}
	case outbox.TableHistory:
		m = &model.HistoryEntry{}
	default:
		return fmt.Errorf("mark synced: unknown table %q", table)
	}
	return h.DB.WithContext(ctx).Model(m).Where("id = ?", id).
		Update("sync_status", model.SyncSynced).Error
}

// ClearForCloudReload czyści cztery tabele synchronizacji. Wywołujący musi
// potem zrobić pełny pull.
func (h *Handle) ClearForCloudReload(ctx context.Context) error {
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, m := range []any{&model.Product{}, &model.HistoryEntry{}, &PendingOperation{}, &ImageCacheEntry{}} {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
