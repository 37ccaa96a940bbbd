// internal/db/imports.go
package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// RegisterImportFile zwraca rekord pliku po SHA-256; nowy plik dostaje status pending.
// created=false oznacza, że taki plik (tej samej treści) już był.
func (h *Handle) RegisterImportFile(ctx context.Context, name, sha string, size int64) (ImportFile, bool, error) {
	var existing ImportFile
	err := h.DB.WithContext(ctx).Where("sha256 = ?", sha).Take(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ImportFile{}, false, err
	}
	rec := ImportFile{
		Filename:   name,
		SHA256:     sha,
		SizeBytes:  size,
		Status:     ImportPending,
		ReceivedAt: h.now(),
	}
	if err := h.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return ImportFile{}, false, err
	}
	return rec, true, nil
}

func (h *Handle) MarkImportDone(ctx context.Context, importID uint, products int) error {
	now := h.now()
	return h.DB.WithContext(ctx).Model(&ImportFile{}).Where("import_id = ?", importID).
		Updates(map[string]any{"status": ImportDone, "products": products, "processed_at": now, "last_error": ""}).Error
}

func (h *Handle) MarkImportFailed(ctx context.Context, importID uint, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return h.DB.WithContext(ctx).Model(&ImportFile{}).Where("import_id = ?", importID).
		Updates(map[string]any{"status": ImportError, "last_error": msg}).Error
}
