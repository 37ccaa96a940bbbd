package db

import (
	"fmt"

	"github.com/bartek5186/pos2cloud/internal/model"
)

// Migrate tworzy/aktualizuje schemat lokalnej bazy.
// Kolejność:
//  1. AutoMigrate czterech tabel synchronizacji + tabel pomocniczych
//  2. indeks pod kolejność FIFO outboxa (created_at, id)
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&model.Product{},
		&model.HistoryEntry{},
		&PendingOperation{},
		&ImageCacheEntry{},
		&ImportFile{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	if err := gdb.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pending_fifo
		ON pending_operations(status, created_at, id);
	`).Error; err != nil {
		return fmt.Errorf("create index idx_pending_fifo: %w", err)
	}
	return nil
}
