// internal/remote/remote.go
//
// Package remote to adapter zdalnego magazynu (źródło prawdy po synchronizacji).
// Zapisy produktów i historii są upsertami po id, więc ponowienie tej samej
// operacji nie tworzy duplikatów.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/logs"
)

var (
	// ErrNotFound: rekord nie istnieje po stronie zdalnej.
	ErrNotFound = errors.New("remote: record not found")
	// ErrRPCUnavailable: funkcja serwerowa nie jest zainstalowana. To nie jest
	// błąd zapisu: wywołujący może wybrać ścieżkę zastępczą.
	ErrRPCUnavailable = errors.New("remote: rpc not available")
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Store struct {
	DB     *gorm.DB
	driver string
	log    zerolog.Logger

	timeout time.Duration
	pub     Publisher
}

func Open(driver, dsn string, log zerolog.Logger) (*Store, error) {
	dial, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	// bez pingu: aplikacja ma wstać także bez sieci
	gdb, err := gorm.Open(dial, &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.New(logs.GormWriter(log), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("remote: open %s: %w", driver, err)
	}
	return New(gdb, driver, log), nil
}

// New opakowuje istniejące połączenie gorm.
func New(gdb *gorm.DB, driver string, log zerolog.Logger) *Store {
	return &Store{
		DB:      gdb,
		driver:  driver,
		log:     log.With().Str("component", "remote").Logger(),
		timeout: 15 * time.Second,
	}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgresql":
		return postgres.Open(dsn), nil
	case DriverMySQL:
		// SELECT VERSION() przy otwarciu wymagałby sieci
		return mysql.New(mysql.Config{DSN: dsn, SkipInitializeWithVersion: true}), nil
	case DriverSQLite:
		return db.SQLiteDialector(dsn), nil
	default:
		return nil, fmt.Errorf("remote: unsupported driver %q", driver)
	}
}

func (s *Store) Driver() string { return s.driver }

// SetTimeout ustawia limit czasu pojedynczego wywołania (0 = bez limitu).
func (s *Store) SetTimeout(d time.Duration) { s.timeout = d }

// SetPublisher włącza rozgłaszanie zmian po udanych zapisach, dla backendów
// bez własnego kanału zmian (np. mysql/sqlite + redis).
func (s *Store) SetPublisher(p Publisher) { s.pub = p }

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping: lekki test osiągalności, używany przez monitor sieci.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

var upsertByID = clause.OnConflict{
	Columns:   []clause.Column{{Name: "id"}},
	UpdateAll: true,
}
