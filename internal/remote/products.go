package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bartek5186/pos2cloud/internal/model"
)

// kolumna tylko lokalna
const colSyncStatus = "sync_status"

// StockPatch: bezwarunkowy zapis ilości (bez arytmetyki po stronie serwera).
type StockPatch struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
	Origin    string    `json:"origin,omitempty"`
}

// FetchProducts: wszystkie produkty, najnowsze pierwsze.
func (s *Store) FetchProducts(ctx context.Context) ([]model.Product, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	var out []model.Product
	if err := s.conn(ctx).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("remote: fetch products: %w", err)
	}
	return out, nil
}

func (s *Store) FetchProduct(ctx context.Context, id string) (model.Product, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	var p model.Product
	err := s.conn(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, ErrNotFound
	}
	return p, err
}

// UpsertProduct: insert i update to ta sama operacja (on conflict id).
func (s *Store) UpsertProduct(ctx context.Context, p model.Product) error {
	ctx, cancel := s.call(ctx)
	defer cancel()

	typ := EventUpdate
	if s.pub != nil {
		var n int64
		if err := s.conn(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Count(&n).Error; err == nil && n == 0 {
			typ = EventInsert
		}
	}
	if err := s.conn(ctx).Omit(colSyncStatus).Clauses(upsertByID).Create(&p).Error; err != nil {
		return fmt.Errorf("remote: upsert product %s: %w", p.ID, err)
	}
	p.SyncStatus = ""
	s.publish(ctx, "products", typ, p, nil)
	return nil
}

// SetProductQuantity zapisuje ilość wprost. ErrNotFound, gdy produktu nie ma.
func (s *Store) SetProductQuantity(ctx context.Context, patch StockPatch) error {
	ctx, cancel := s.call(ctx)
	defer cancel()

	values := map[string]any{"quantity": patch.Quantity}
	if !patch.UpdatedAt.IsZero() {
		values["updated_at"] = patch.UpdatedAt
	}
	if patch.Origin != "" {
		values["origin"] = patch.Origin
	}
	res := s.conn(ctx).Model(&model.Product{}).Where("id = ?", patch.ID).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("remote: set quantity %s: %w", patch.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// mysql zwraca 0 także przy niezmienionych wartościach
		var n int64
		if err := s.conn(ctx).Model(&model.Product{}).Where("id = ?", patch.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("remote: set quantity %s: %w", patch.ID, ErrNotFound)
		}
	}
	s.publish(ctx, "products", EventUpdate, patch, nil)
	return nil
}

// ProductQuantity: odczyt bieżącej ilości (ścieżka zastępcza dekrementacji).
func (s *Store) ProductQuantity(ctx context.Context, id string) (int, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	var rows []int
	if err := s.conn(ctx).Model(&model.Product{}).Where("id = ?", id).Limit(1).Pluck("quantity", &rows).Error; err != nil {
		return 0, fmt.Errorf("remote: read quantity %s: %w", id, err)
	}
	if len(rows) == 0 {
		return 0, ErrNotFound
	}
	return rows[0], nil
}

// DeleteProduct jest idempotentne.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.conn(ctx).Where("id = ?", id).Delete(&model.Product{}).Error; err != nil {
		return fmt.Errorf("remote: delete product %s: %w", id, err)
	}
	s.publish(ctx, "products", EventDelete, nil, map[string]string{"id": id})
	return nil
}
