package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// DecrementStock wywołuje decrement_stock(id, amount, origin), arytmetyka po
// stronie serwera z podłogą 0. Zwraca ilość po operacji.
// ErrRPCUnavailable gdy funkcja nie istnieje; wtedy nic nie zostało zapisane.
func (s *Store) DecrementStock(ctx context.Context, id string, amount int, origin string) (int, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	var qty sql.NullInt64
	err := s.conn(ctx).Raw("SELECT decrement_stock(?, ?, ?)", id, amount, origin).Row().Scan(&qty)
	if err != nil {
		if IsRPCUnavailable(err) {
			return 0, fmt.Errorf("decrement_stock: %w", ErrRPCUnavailable)
		}
		return 0, fmt.Errorf("remote: decrement_stock %s: %w", id, err)
	}
	if !qty.Valid {
		return 0, fmt.Errorf("remote: decrement_stock %s: %w", id, ErrNotFound)
	}
	s.publish(ctx, "products", EventUpdate, map[string]any{"id": id, "quantity": qty.Int64, "origin": origin}, nil)
	return int(qty.Int64), nil
}

// IsRPCUnavailable rozpoznaje "funkcja nie istnieje" w błędach sterowników.
func IsRPCUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRPCUnavailable) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42883" // undefined_function
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1305 // ER_SP_DOES_NOT_EXIST
	}
	return strings.Contains(err.Error(), "no such function")
}
