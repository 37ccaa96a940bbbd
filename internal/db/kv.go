// internal/db/kv.go
package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyDeviceID = "device_id"

func (h *Handle) GetKV(ctx context.Context, k string) (string, bool, error) {
	var kv KV
	err := h.DB.WithContext(ctx).Where("k = ?", k).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kv.V, true, nil
}

func (h *Handle) SetKV(ctx context.Context, k, v string) error {
	return h.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&KV{K: k, V: v}).Error
}

// DeviceID zwraca trwały identyfikator urządzenia, tworząc go przy pierwszym użyciu.
func (h *Handle) DeviceID(ctx context.Context) (string, error) {
	v, ok, err := h.GetKV(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}
	id := uuid.NewString()
	if err := h.SetKV(ctx, keyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
