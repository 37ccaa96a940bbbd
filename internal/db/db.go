// internal/db/db.go
//
// Package db to lokalny, trwały magazyn urządzenia: produkty, historia,
// kolejka operacji oczekujących (outbox) i cache obrazków. Działa bez sieci.
package db

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bartek5186/pos2cloud/internal/logs"
)

// ErrNotFound: brak rekordu lokalnie. Przy mutacjach oznacza błąd wywołującego.
var ErrNotFound = errors.New("db: record not found")

type Handle struct {
	DB   *gorm.DB
	Path string

	origin string           // id urządzenia, podstawa znaczników Stamp
	now    func() time.Time // podmieniane w testach
}

func OpenAt(dir string, log zerolog.Logger) (*Handle, error) {
	return Open(filepath.Join(dir, "pos2cloud.db"), log)
}

func Open(dbPath string, log zerolog.Logger) (*Handle, error) {
	gdb, err := gorm.Open(SQLiteDialector(dbPath), &gorm.Config{
		Logger: logger.New(logs.GormWriter(log), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}
	// SQLite: jeden pisarz naraz
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, err
	}
	if err := gdb.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, err
	}
	return &Handle{DB: gdb, Path: dbPath, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetOrigin ustawia id urządzenia, z którego budowane są znaczniki zapisów.
func (h *Handle) SetOrigin(origin string) { h.origin = origin }

func (h *Handle) Origin() string { return h.origin }

// Stamp zwraca znacznik jednego zapisu do kolumny origin:
// "<id urządzenia>#<sufiks>". Każdy zapis dostaje nowy sufiks, więc wiersz
// zmieniony później bez ustawienia origin nie wygląda na nasz.
func (h *Handle) Stamp() string {
	if h.origin == "" {
		return ""
	}
	return h.origin + "#" + uuid.NewString()[:8]
}

// OriginDevice wycina id urządzenia ze znacznika zapisu.
func OriginDevice(stamp string) string {
	dev, _, _ := strings.Cut(stamp, "#")
	return dev
}

// SetClock: tylko dla testów.
func (h *Handle) SetClock(now func() time.Time) { h.now = now }

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
