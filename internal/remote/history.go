package remote

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bartek5186/pos2cloud/internal/model"
)

// FetchHistory: ostatnie limit wpisów (najnowsze pierwsze). limit<=0 = wszystkie.
func (s *Store) FetchHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	q := s.conn(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.HistoryEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("remote: fetch history: %w", err)
	}
	return out, nil
}

func (s *Store) FetchSales(ctx context.Context) ([]model.HistoryEntry, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	var out []model.HistoryEntry
	err := s.conn(ctx).Where("action_type = ?", model.ActionSale).Order("created_at desc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("remote: fetch sales: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertHistory(ctx context.Context, e model.HistoryEntry) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.conn(ctx).Omit(colSyncStatus).Clauses(upsertByID).Create(&e).Error; err != nil {
		return fmt.Errorf("remote: upsert history %s: %w", e.ID, err)
	}
	e.SyncStatus = ""
	s.publish(ctx, "product_history", EventInsert, e, nil)
	return nil
}

func (s *Store) DeleteHistory(ctx context.Context, id string) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.conn(ctx).Where("id = ?", id).Delete(&model.HistoryEntry{}).Error; err != nil {
		return fmt.Errorf("remote: delete history %s: %w", id, err)
	}
	s.publish(ctx, "product_history", EventDelete, nil, map[string]string{"id": id})
	return nil
}

// DeleteHistoryRange kasuje wpisy z [from, to); zero-value = brak granicy.
func (s *Store) DeleteHistoryRange(ctx context.Context, from, to time.Time) (int64, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	q := s.conn(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	res := q.Delete(&model.HistoryEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("remote: delete history range: %w", res.Error)
	}
	return res.RowsAffected, nil
}
