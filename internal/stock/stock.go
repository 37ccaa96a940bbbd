// Package stock odejmuje stan magazynowy przy sprzedaży tak, żeby równoległe
// sprzedaże na kilku urządzeniach nie gubiły się nawzajem.
//
// Kolejność kroków:
//  1. lokalnie od razu (kolejkowana ścieżka), żeby UI i offline działały,
//  2. online: atomowe odjęcie po stronie serwera (decrement_stock),
//  3. gdy funkcji nie ma: odczyt + zapis (słabsza gwarancja, patrz fallback),
//  4. wartość potwierdzona przez serwer nadpisuje lokalną ścieżką bez kolejki.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/observability"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
)

var ErrInvalidAmount = errors.New("stock: amount must be positive")

type Path string

const (
	PathRPC      Path = "rpc"
	PathFallback Path = "fallback" // read-modify-write, okno wyścigu
	PathOffline  Path = "offline"
	PathFailed   Path = "failed"
)

// Result: lokalny zapis i zdalne potwierdzenie to osobne fakty.
type Result struct {
	Success      bool   `json:"success"`
	LocalUpdated bool   `json:"local_updated"`
	LocalOnly    bool   `json:"local_only,omitempty"`
	Path         Path   `json:"path"`
	Quantity     int    `json:"quantity"`
	Error        string `json:"error,omitempty"`
}

type Remote interface {
	DecrementStock(ctx context.Context, id string, amount int, origin string) (int, error)
	ProductQuantity(ctx context.Context, id string) (int, error)
	SetProductQuantity(ctx context.Context, patch remote.StockPatch) error
}

type Connectivity interface {
	Online() bool
}

type Decrementer struct {
	log     zerolog.Logger
	local   *db.Handle
	remote  Remote
	net     Connectivity
	state   *state.AppState
	metrics *observability.Metrics

	// RequireAtomic: brak decrement_stock kończy zdalny krok błędem zamiast fallbacku.
	RequireAtomic bool
}

func New(log zerolog.Logger, local *db.Handle, rem Remote, net Connectivity, st *state.AppState, m *observability.Metrics) *Decrementer {
	return &Decrementer{
		log:     log.With().Str("component", "stock").Logger(),
		local:   local,
		remote:  rem,
		net:     net,
		state:   st,
		metrics: m,
	}
}

// Decrement odejmuje amount od stanu produktu, nigdy poniżej zera. Błąd
// zwraca tylko dla złych danych i awarii lokalnej bazy; problemy zdalne
// są w Result.
func (d *Decrementer) Decrement(ctx context.Context, id string, amount int) (Result, error) {
	if amount <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	cur, err := d.local.GetProduct(ctx, id)
	if err != nil {
		return Result{}, err
	}
	optimistic := floor(cur.Quantity - amount)
	p, opID, err := d.local.UpdateProductStock(ctx, id, optimistic)
	if err != nil {
		return Result{}, err
	}
	d.touch(p)

	if d.net == nil || !d.net.Online() {
		d.metrics.Decrement(string(PathOffline))
		return Result{Success: true, LocalUpdated: true, LocalOnly: true, Path: PathOffline, Quantity: optimistic}, nil
	}

	confirmed, path, err := d.remoteDecrement(ctx, p, amount)
	if err != nil {
		// lokalny stan zostaje, operacja w outboxie dogoni przy synchronizacji
		d.metrics.Decrement(string(PathFailed))
		d.log.Warn().Err(err).Str("product", id).Int("amount", amount).Msg("zdalne odjęcie stanu nieudane")
		return Result{LocalUpdated: true, Path: PathFailed, Quantity: optimistic, Error: err.Error()}, nil
	}

	final, err := d.local.UpdateProductStockDirect(ctx, id, confirmed)
	if err != nil {
		return Result{}, err
	}
	// potwierdzone zdalnie: optymistyczny wpis w outboxie nadpisałby nowszy stan
	if err := d.local.ClearPendingOperation(ctx, opID); err != nil {
		return Result{}, err
	}
	d.touch(final)
	d.metrics.Decrement(string(path))
	return Result{Success: true, LocalUpdated: true, Path: path, Quantity: confirmed}, nil
}

// remoteDecrement wykonuje co najwyżej jedno zdalne odjęcie. Fallback tylko
// gdy funkcja nie istnieje; każdy inny błąd RPC mógł już zadziałać po
// stronie serwera.
func (d *Decrementer) remoteDecrement(ctx context.Context, p model.Product, amount int) (int, Path, error) {
	qty, err := d.remote.DecrementStock(ctx, p.ID, amount, d.local.Stamp())
	if err == nil {
		return qty, PathRPC, nil
	}
	if !errors.Is(err, remote.ErrRPCUnavailable) {
		return 0, PathFailed, err
	}
	if d.RequireAtomic {
		return 0, PathFailed, err
	}
	d.log.Warn().Str("product", p.ID).Msg("decrement_stock niedostępne, fallback odczyt+zapis")
	return d.fallback(ctx, p, amount)
}

// fallback: odczyt bieżącego stanu zdalnego i zapis max(0, stan-amount)
// bez warunku. Dwie równoległe sprzedaże mogą tu nadpisać jedna drugą.
func (d *Decrementer) fallback(ctx context.Context, p model.Product, amount int) (int, Path, error) {
	current, err := d.remote.ProductQuantity(ctx, p.ID)
	if err != nil {
		return 0, PathFailed, err
	}
	target := floor(current - amount)
	err = d.remote.SetProductQuantity(ctx, remote.StockPatch{
		ID:        p.ID,
		Quantity:  target,
		UpdatedAt: p.UpdatedAt,
		Origin:    d.local.Stamp(),
	})
	if err != nil {
		return 0, PathFailed, err
	}
	return target, PathFallback, nil
}

func (d *Decrementer) touch(p model.Product) {
	if d.state == nil {
		return
	}
	d.state.TouchLocalMutation(time.Now())
	d.state.Put(p)
}

func floor(q int) int {
	if q < 0 {
		return 0
	}
	return q
}
