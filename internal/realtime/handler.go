// Package realtime wkłada zmiany z kanału zdalnego (produkty, historia) do
// stanu lokalnego: pamięć, lokalna baza, powiadomienia i przerysowanie.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/observability"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
)

type Outcome string

const (
	Applied Outcome = "applied"
	Echo    Outcome = "echo"    // własny zapis wrócił kanałem
	Ignored Outcome = "ignored" // nic do zrobienia
	Failed  Outcome = "failed"
)

type Handler struct {
	log     zerolog.Logger
	local   *db.Handle
	state   *state.AppState
	hub     *notify.Hub
	metrics *observability.Metrics
	window  time.Duration
	now     func() time.Time
}

func NewHandler(log zerolog.Logger, local *db.Handle, st *state.AppState, hub *notify.Hub, m *observability.Metrics, echoWindow time.Duration) *Handler {
	return &Handler{
		log:     log.With().Str("component", "realtime").Logger(),
		local:   local,
		state:   st,
		hub:     hub,
		metrics: m,
		window:  echoWindow,
		now:     time.Now,
	}
}

// rowMeta: pola potrzebne przed pełnym dekodowaniem wiersza.
type rowMeta struct {
	ID         string           `json:"id"`
	Origin     string           `json:"origin"`
	ActionType model.ActionType `json:"action_type"`
}

// Handle przetwarza jedno zdarzenie. Błędy kończą się logiem i Failed;
// subskrypcja działa dalej.
func (h *Handler) Handle(ctx context.Context, c remote.Change) Outcome {
	out, err := h.handle(ctx, c)
	if err != nil {
		h.log.Error().Err(err).Str("table", c.Table).Str("type", string(c.Type)).Msg("zdarzenie realtime odrzucone")
		out = Failed
	}
	h.metrics.RealtimeEvent(c.Table, string(c.Type), string(out))
	return out
}

func (h *Handler) handle(ctx context.Context, c remote.Change) (Outcome, error) {
	raw := c.New
	if c.Type == remote.EventDelete || len(raw) == 0 || string(raw) == "null" {
		raw = c.Old
	}
	var meta rowMeta
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Failed, fmt.Errorf("decode row: %w", err)
		}
	}
	if meta.ID == "" {
		return Ignored, nil
	}
	// DELETE niesie stary wiersz, a jego origin to ostatni piszący, nie
	// kasujący. O echu decyduje to, czy wiersz jeszcze mamy lokalnie.
	if c.Type != remote.EventDelete && h.isEcho(meta.Origin) {
		return Echo, nil
	}

	switch c.Table {
	case "products":
		switch c.Type {
		case remote.EventUpdate:
			return h.onUpdate(ctx, meta.ID, c.New)
		case remote.EventInsert:
			return h.onInsert(ctx, meta.ID, c.New)
		case remote.EventDelete:
			return h.onDelete(ctx, meta.ID)
		}
	case "product_history":
		if c.Type == remote.EventInsert && meta.ActionType == model.ActionSale {
			h.hub.Publish(notify.Event{Kind: notify.SyncPulse, ProductID: meta.ID, Message: "sale"})
			return Applied, nil
		}
	}
	return Ignored, nil
}

// isEcho: znacznik z naszym id urządzenia to na pewno nasz zapis; bez
// origin zostaje okno czasowe od ostatniej lokalnej mutacji.
func (h *Handler) isEcho(origin string) bool {
	if origin != "" {
		return db.OriginDevice(origin) == h.local.Origin()
	}
	last := h.state.LastLocalMutation()
	return !last.IsZero() && h.now().Sub(last) < h.window
}

func (h *Handler) onUpdate(ctx context.Context, id string, newRow json.RawMessage) (Outcome, error) {
	cur, ok := h.state.Find(id)
	if !ok {
		p, err := h.local.GetProduct(ctx, id)
		if err != nil {
			// nieznany produkt; przyjdzie z najbliższym pull
			return Ignored, nil
		}
		cur = p
	}
	merged := cur
	if err := json.Unmarshal(newRow, &merged); err != nil {
		return Failed, fmt.Errorf("merge product %s: %w", id, err)
	}
	merged.ID = id
	merged.SyncStatus = model.SyncSynced
	if err := h.local.BulkPutProducts(ctx, []model.Product{merged}); err != nil {
		return Failed, err
	}
	h.state.Put(merged)

	if merged.Quantity != cur.Quantity {
		oldQty, newQty := cur.Quantity, merged.Quantity
		msg := "uzupełniono stan"
		if newQty < oldQty {
			msg = "sprzedano na innym urządzeniu"
		}
		h.hub.Publish(notify.Event{
			Kind: notify.ProductChanged, ProductID: id, Name: merged.Name,
			OldQty: &oldQty, NewQty: &newQty, Message: msg,
		})
	}
	h.state.RequestRender()
	return Applied, nil
}

func (h *Handler) onInsert(ctx context.Context, id string, newRow json.RawMessage) (Outcome, error) {
	if _, ok := h.state.Find(id); ok {
		return Ignored, nil
	}
	p := model.NewProduct(id)
	if err := json.Unmarshal(newRow, &p); err != nil {
		return Failed, fmt.Errorf("decode product %s: %w", id, err)
	}
	p.SyncStatus = model.SyncSynced
	if err := h.local.BulkPutProducts(ctx, []model.Product{p}); err != nil {
		return Failed, err
	}
	h.state.Put(p)
	h.hub.Publish(notify.Event{Kind: notify.ProductAdded, ProductID: id, Name: p.Name, Message: "nowy produkt"})
	h.state.RequestRender()
	return Applied, nil
}

func (h *Handler) onDelete(ctx context.Context, id string) (Outcome, error) {
	p, ok := h.state.Find(id)
	if !ok {
		stored, err := h.local.GetProduct(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			// już skasowany u nas: własne usunięcie albo powtórka
			return Echo, nil
		}
		if err != nil {
			return Failed, err
		}
		p = stored
	}
	name := p.Name
	h.state.Remove(id)
	if err := h.local.PurgeProduct(ctx, id); err != nil {
		return Failed, err
	}
	h.hub.Publish(notify.Event{Kind: notify.ProductRemoved, ProductID: id, Name: name, Message: "produkt usunięty"})
	h.state.RequestRender()
	return Applied, nil
}
