// Package images trzyma zdjęcia produktów w lokalnym cache, żeby lista
// działała offline, i wysyła zdjęcia zrobione bez sieci do object storage.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bartek5186/pos2cloud/internal/db"
)

// LocalScheme: prefiks referencji do zdjęcia, które istnieje tylko w cache.
const LocalScheme = "local-image:"

const maxImageBytes = 10 << 20

var ErrStorageDisabled = errors.New("images: object storage not configured")

// Uploader: *remote.ObjectStorage.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, name, contentType string, blob []byte) (string, error)
}

type Store struct {
	log      zerolog.Logger
	local    *db.Handle
	uploader Uploader
	prefix   string // ścieżka, pod którą API serwuje cache, np. /images/
	http     *http.Client
	group    singleflight.Group
}

func New(log zerolog.Logger, local *db.Handle, up Uploader, servePrefix string) *Store {
	if servePrefix == "" {
		servePrefix = "/images/"
	}
	if !strings.HasSuffix(servePrefix, "/") {
		servePrefix += "/"
	}
	return &Store{
		log:      log.With().Str("component", "images").Logger(),
		local:    local,
		uploader: up,
		prefix:   servePrefix,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *Store) IsLocal(ref string) bool { return strings.HasPrefix(ref, LocalScheme) }

// ServedURL: adres wpisu z cache w lokalnym API.
func (s *Store) ServedURL(key string) string {
	return s.prefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

// KeyFromServed odwraca ServedURL (ostatni segment ścieżki).
func KeyFromServed(segment string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return "", fmt.Errorf("images: bad key: %w", err)
	}
	return string(b), nil
}

// GetOrFetch zwraca lokalny adres zdjęcia; przy braku w cache pobiera je
// i zapisuje. Każdy błąd kończy się zwróceniem oryginalnego url, a porażka
// nie jest zapamiętywana, więc następne wywołanie spróbuje znowu.
func (s *Store) GetOrFetch(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	if _, err := s.local.GetCachedImage(ctx, url); err == nil {
		return s.ServedURL(url)
	} else if !errors.Is(err, db.ErrNotFound) {
		s.log.Warn().Err(err).Str("url", url).Msg("odczyt cache nieudany")
		return url
	}
	if s.IsLocal(url) || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return url
	}

	_, err, _ := s.group.Do(url, func() (any, error) {
		return nil, s.fetch(ctx, url)
	})
	if err != nil {
		s.log.Debug().Err(err).Str("url", url).Msg("pobranie zdjęcia nieudane")
		return url
	}
	return s.ServedURL(url)
}

func (s *Store) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return err
	}
	if len(blob) > maxImageBytes {
		return fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(blob)
	}
	return s.local.CacheImage(ctx, url, blob, ct)
}

// Capture zapisuje zdjęcie zrobione na urządzeniu i zwraca referencję
// local-image:..., którą można od razu przypisać do produktu.
func (s *Store) Capture(ctx context.Context, blob []byte, contentType string) (string, error) {
	if len(blob) == 0 {
		return "", errors.New("images: empty blob")
	}
	if contentType == "" {
		contentType = http.DetectContentType(blob)
	}
	ref := LocalScheme + uuid.NewString()
	if err := s.local.CacheImage(ctx, ref, blob, contentType); err != nil {
		return "", err
	}
	return ref, nil
}

// PublishLocal wysyła zdjęcie local-image:... i zwraca publiczny URL. Blob
// zostaje też pod nowym URL, więc lista nie pobiera go drugi raz.
func (s *Store) PublishLocal(ctx context.Context, ref string) (string, error) {
	if !s.IsLocal(ref) {
		return ref, nil
	}
	if s.uploader == nil || !s.uploader.Enabled() {
		return "", ErrStorageDisabled
	}
	e, err := s.local.GetCachedImage(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("images: %s: %w", ref, err)
	}
	name := strings.TrimPrefix(ref, LocalScheme) + extension(e.ContentType)
	url, err := s.uploader.Upload(ctx, name, e.ContentType, e.Blob)
	if err != nil {
		return "", err
	}
	if err := s.local.CacheImage(ctx, url, e.Blob, e.ContentType); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("cache po uploadzie nieudany")
	}
	s.log.Info().Str("ref", ref).Str("url", url).Msg("zdjęcie wysłane")
	return url, nil
}

// Open zwraca wpis cache (dla serwowania przez API).
func (s *Store) Open(ctx context.Context, key string) (db.ImageCacheEntry, error) {
	return s.local.GetCachedImage(ctx, key)
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
