// internal/db/images.go
package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// CacheImage nadpisuje wpis dla url (jeden wpis na URL).
func (h *Handle) CacheImage(ctx context.Context, url string, blob []byte, contentType string) error {
	e := ImageCacheEntry{URL: url, Blob: blob, ContentType: contentType, CachedAt: h.now()}
	return h.DB.WithContext(ctx).Save(&e).Error
}

// GetCachedImage zwraca ErrNotFound, gdy obrazka nie ma w cache.
func (h *Handle) GetCachedImage(ctx context.Context, url string) (ImageCacheEntry, error) {
	var e ImageCacheEntry
	err := h.DB.WithContext(ctx).Where("url = ?", url).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ImageCacheEntry{}, ErrNotFound
	}
	return e, err
}

func (h *Handle) DeleteCachedImage(ctx context.Context, url string) error {
	return h.DB.WithContext(ctx).Where("url = ?", url).Delete(&ImageCacheEntry{}).Error
}

func (h *Handle) ClearImageCache(ctx context.Context) error {
	return h.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ImageCacheEntry{}).Error
}
