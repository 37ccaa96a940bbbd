// internal/db/pending.go
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bartek5186/pos2cloud/internal/outbox"
)

// enqueue dopisuje operację w tej samej transakcji co mutacja rekordu.
func enqueue(tx *gorm.DB, op outbox.Op, at time.Time) (PendingOperation, error) {
	payload, err := outbox.Encode(op)
	if err != nil {
		return PendingOperation{}, err
	}
	row := PendingOperation{
		Table:         string(op.Table()),
		OperationType: string(op.Kind()),
		RecordID:      op.RecordID(),
		PayloadJSON:   payload,
		Status:        OpStatusPending,
		CreatedAt:     at,
	}
	if err := tx.Create(&row).Error; err != nil {
		return PendingOperation{}, fmt.Errorf("enqueue %s/%s %s: %w", row.Table, row.OperationType, row.RecordID, err)
	}
	return row, nil
}

// Decode zwraca wariant operacji zapisanej w wierszu.
func (p PendingOperation) Decode() (outbox.Op, error) {
	return outbox.Decode(p.Table, p.OperationType, p.RecordID, p.PayloadJSON)
}

func (h *Handle) QueueOperation(ctx context.Context, op outbox.Op) (PendingOperation, error) {
	return enqueue(h.DB.WithContext(ctx), op, h.now())
}

// GetPendingOperations: żywe operacje w kolejności FIFO.
func (h *Handle) GetPendingOperations(ctx context.Context) ([]PendingOperation, error) {
	var ops []PendingOperation
	err := h.DB.WithContext(ctx).
		Where("status = ?", OpStatusPending).
		Order("created_at asc").Order("id asc").
		Find(&ops).Error
	return ops, err
}

func (h *Handle) ClearPendingOperation(ctx context.Context, id uint) error {
	return h.DB.WithContext(ctx).Delete(&PendingOperation{}, id).Error
}

// ClearPendingForRecord usuwa wszystkie operacje danego rekordu (np. po
// bezpośrednim, potwierdzonym zapisie wpisu historii).
func (h *Handle) ClearPendingForRecord(ctx context.Context, table outbox.Table, recordID string) error {
	return h.DB.WithContext(ctx).
		Where("table_name = ? AND record_id = ?", string(table), recordID).
		Delete(&PendingOperation{}).Error
}

func (h *Handle) ClearAllPendingOperations(ctx context.Context) error {
	return h.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&PendingOperation{}).Error
}

// GetPendingCount: do badge "N oczekujących"; martwe operacje liczone osobno.
func (h *Handle) GetPendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := h.DB.WithContext(ctx).Model(&PendingOperation{}).
		Where("status = ?", OpStatusPending).Count(&n).Error
	return n, err
}

func (h *Handle) GetDeadCount(ctx context.Context) (int64, error) {
	var n int64
	err := h.DB.WithContext(ctx).Model(&PendingOperation{}).
		Where("status = ?", OpStatusDead).Count(&n).Error
	return n, err
}

func (h *Handle) GetDeadOperations(ctx context.Context) ([]PendingOperation, error) {
	var ops []PendingOperation
	err := h.DB.WithContext(ctx).
		Where("status = ?", OpStatusDead).
		Order("created_at asc").Order("id asc").
		Find(&ops).Error
	return ops, err
}

// RecordFailure zapisuje nieudaną próbę. Po maxAttempts (0 = bez limitu)
// operacja trafia do dead-letter i przestaje być wysyłana.
func (h *Handle) RecordFailure(ctx context.Context, id uint, cause error, maxAttempts int) (bool, error) {
	var dead bool
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var op PendingOperation
		if err := tx.Take(&op, id).Error; err != nil {
			return err
		}
		op.Attempts++
		if cause != nil {
			op.LastError = cause.Error()
		}
		if maxAttempts > 0 && op.Attempts >= maxAttempts {
			op.Status = OpStatusDead
			dead = true
		}
		return tx.Model(&PendingOperation{}).Where("id = ?", id).Updates(map[string]any{
			"attempts":   op.Attempts,
			"last_error": op.LastError,
			"status":     op.Status,
		}).Error
	})
	return dead, err
}

// RequeueDead przywraca martwe operacje do kolejki z wyzerowanym licznikiem.
func (h *Handle) RequeueDead(ctx context.Context) (int64, error) {
	res := h.DB.WithContext(ctx).Model(&PendingOperation{}).
		Where("status = ?", OpStatusDead).
		Updates(map[string]any{"status": OpStatusPending, "attempts": 0})
	return res.RowsAffected, res.Error
}

// PendingRecordIDs: id rekordów tabeli, które mają niewysłaną operację.
func (h *Handle) PendingRecordIDs(ctx context.Context, table outbox.Table) (map[string]struct{}, error) {
	var ids []string
	if err := h.DB.WithContext(ctx).Model(&PendingOperation{}).
		Where("status = ? AND table_name = ?", OpStatusPending, string(table)).
		Distinct().Pluck("record_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
