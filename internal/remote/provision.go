package remote

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bartek5186/pos2cloud/internal/model"
)

//go:embed sql/postgres.sql
var postgresSchema string

//go:embed sql/mysql_decrement.sql
var mysqlDecrement string

const DefaultChannel = "pos_changes"

// Provision zakłada schemat zdalny.
//   - postgres: tabele, decrement_stock i triggery NOTIFY na kanale channel
//   - mysql: AutoMigrate + funkcja decrement_stock
//   - sqlite: tylko AutoMigrate (brak funkcji, dekrementacja idzie ścieżką zastępczą)
func (s *Store) Provision(ctx context.Context, channel string) error {
	if channel == "" {
		channel = DefaultChannel
	}
	switch s.driver {
	case DriverPostgres:
		script := strings.ReplaceAll(postgresSchema, "{{channel}}", channel)
		if err := s.conn(ctx).Exec(script).Error; err != nil {
			return fmt.Errorf("provision postgres: %w", err)
		}
	case DriverMySQL:
		if err := s.migrate(ctx); err != nil {
			return err
		}
		if err := s.conn(ctx).Exec("DROP FUNCTION IF EXISTS decrement_stock").Error; err != nil {
			return fmt.Errorf("provision mysql: %w", err)
		}
		if err := s.conn(ctx).Exec(mysqlDecrement).Error; err != nil {
			// np. brak log_bin_trust_function_creators, działa ścieżka zastępcza
			s.log.Warn().Err(err).Msg("nie udało się utworzyć decrement_stock")
		}
	default:
		if err := s.migrate(ctx); err != nil {
			return err
		}
	}
	s.log.Info().Str("driver", s.driver).Str("channel", channel).Msg("schemat zdalny gotowy")
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.conn(ctx).AutoMigrate(&model.Product{}, &model.HistoryEntry{}); err != nil {
		return fmt.Errorf("remote AutoMigrate error: %w", err)
	}
	return nil
}
