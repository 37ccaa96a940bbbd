// internal/db/products.go
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/outbox"
)

var upsertByID = clause.OnConflict{
	Columns:   []clause.Column{{Name: "id"}},
	UpdateAll: true,
}

// GetAllProducts: najnowsze pierwsze (brak created_at sortuje się jak epoch).
func (h *Handle) GetAllProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := h.DB.WithContext(ctx).Order("created_at desc").Order("id asc").Find(&out).Error
	return out, err
}

func (h *Handle) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	err := h.DB.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, ErrNotFound
	}
	return p, err
}

// SaveProduct przy isUpdate i istniejącym rekordzie scala data z zapisanym
// (zachowując created_at i nieprzekazane pola), w przeciwnym razie wstawia nowy.
// Zawsze: updated_at=now, sync_status=pending i wpis w outboxie.
func (h *Handle) SaveProduct(ctx context.Context, data model.ProductPatch, isUpdate bool) (model.Product, error) {
	now := h.now()
	var out model.Product

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id := ""
		if data.ID != nil {
			id = *data.ID
		}

		var existing model.Product
		found := false
		if id != "" {
			err := tx.Where("id = ?", id).Take(&existing).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		var p model.Product
		merge := isUpdate && found
		if merge {
			p = existing
		} else {
			if id == "" {
				id = uuid.NewString()
			}
			p = model.NewProduct(id)
			p.CreatedAt = now
			if found {
				p.CreatedAt = existing.CreatedAt
			}
		}
		data.Apply(&p)
		p.UpdatedAt = now
		p.SyncStatus = model.SyncPending
		p.Origin = h.Stamp()

		if err := tx.Clauses(upsertByID).Create(&p).Error; err != nil {
			return fmt.Errorf("save product %s: %w", p.ID, err)
		}
		if _, err := enqueue(tx, outbox.ProductUpsert{Product: p, Insert: !merge}, now); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// DeleteProduct jest idempotentne: kasuje lokalnie (jeśli jest) i zawsze kolejkuje delete.
func (h *Handle) DeleteProduct(ctx context.Context, id string) error {
	now := h.now()
	return h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&model.Product{}).Error; err != nil {
			return err
		}
		_, err := enqueue(tx, outbox.ProductDelete{ID: id}, now)
		return err
	})
}

// UpdateProductStock ustawia ilość i kolejkuje patch {id, quantity}.
// Zwraca też id wpisu outboxa, żeby protokół stanów mógł go unieważnić
// po potwierdzeniu przez serwer.
func (h *Handle) UpdateProductStock(ctx context.Context, id string, quantity int) (model.Product, uint, error) {
	now := h.now()
	var out model.Product
	var opID uint
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := h.setStock(tx, id, quantity, model.SyncPending)
		if err != nil {
			return err
		}
		op, err := enqueue(tx, outbox.ProductStock{ID: id, Quantity: quantity, UpdatedAt: now, Origin: h.Stamp()}, now)
		if err != nil {
			return err
		}
		out, opID = p, op.ID
		return nil
	})
	return out, opID, err
}

// UpdateProductStockDirect: tylko gdy zapis jest już potwierdzony zdalnie.
// Nie dopisuje nic do outboxa.
func (h *Handle) UpdateProductStockDirect(ctx context.Context, id string, quantity int) (model.Product, error) {
	var out model.Product
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := h.setStock(tx, id, quantity, model.SyncSynced)
		out = p
		return err
	})
	return out, err
}

func (h *Handle) setStock(tx *gorm.DB, id string, quantity int, status model.SyncStatus) (model.Product, error) {
	var p model.Product
	if err := tx.Where("id = ?", id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Product{}, fmt.Errorf("update stock %s: %w", id, ErrNotFound)
		}
		return model.Product{}, err
	}
	p.Quantity = quantity
	p.UpdatedAt = h.now()
	p.SyncStatus = status
	p.Origin = h.Stamp()
	err := tx.Model(&model.Product{}).Where("id = ?", id).Updates(map[string]any{
		"quantity":    p.Quantity,
		"updated_at":  p.UpdatedAt,
		"sync_status": p.SyncStatus,
		"origin":      p.Origin,
	}).Error
	return p, err
}

// SetProductImage podmienia URL obrazka bez kolejkowania (po uploadzie).
func (h *Handle) SetProductImage(ctx context.Context, id, url string) error {
	return h.DB.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).Update("image_url", url).Error
}

// PurgeProduct usuwa lokalnie bez kolejkowania, dla zmian przychodzących z chmury.
func (h *Handle) PurgeProduct(ctx context.Context, id string) error {
	return h.DB.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{}).Error
}
