// Package state to jawny kontekst aplikacji: lista produktów w pamięci,
// bieżące filtry widoku i znacznik ostatniej lokalnej mutacji. Przekazywany
// do syncera, handlera realtime i fasady zamiast stanu globalnego.
package state

import (
	"sync"
	"time"

	"github.com/bartek5186/pos2cloud/internal/model"
)

// Renderer: warstwa prezentacji; dostaje listę po nałożeniu filtra kategorii.
type Renderer interface {
	RenderProducts(list []model.Product)
}

type RendererFunc func(list []model.Product)

func (f RendererFunc) RenderProducts(list []model.Product) { f(list) }

// View: to, co użytkownik ma aktualnie na ekranie.
type View struct {
	Category       string `json:"category,omitempty"`
	Search         string `json:"search,omitempty"`          // wpisany filtr w widoku sprzedaży
	SingleResultID string `json:"single_result_id,omitempty"` // pojedynczy wynik wyszukiwania
}

// SearchActive: aktywne wyszukiwanie blokuje przerysowanie listy.
func (v View) SearchActive() bool {
	return v.Search != "" || v.SingleResultID != ""
}

type AppState struct {
	mu                sync.RWMutex
	products          []model.Product
	view              View
	lastLocalMutation time.Time
	renderDeferred    bool
	renderer          Renderer
}

func New(r Renderer) *AppState {
	return &AppState{renderer: r}
}

func (s *AppState) SetRenderer(r Renderer) {
	s.mu.Lock()
	s.renderer = r
	s.mu.Unlock()
}

// Products zwraca kopię listy.
func (s *AppState) Products() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *AppState) SetProducts(list []model.Product) {
	cp := make([]model.Product, len(list))
	copy(cp, list)
	s.mu.Lock()
	s.products = cp
	s.mu.Unlock()
}

func (s *AppState) Find(id string) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

// Put podmienia produkt o tym samym id albo dopisuje go na początek.
func (s *AppState) Put(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == p.ID {
			s.products[i] = p
			return
		}
	}
	s.products = append([]model.Product{p}, s.products...)
}

func (s *AppState) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return true
		}
	}
	return false
}

// TouchLocalMutation zapisuje moment lokalnego zapisu (okno echa realtime).
func (s *AppState) TouchLocalMutation(at time.Time) {
	s.mu.Lock()
	s.lastLocalMutation = at
	s.mu.Unlock()
}

func (s *AppState) LastLocalMutation() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocalMutation
}

func (s *AppState) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetView zmienia filtry; zaległe przerysowanie wykonuje się, gdy wyszukiwanie zniknie.
func (s *AppState) SetView(v View) {
	s.mu.Lock()
	s.view = v
	flush := s.renderDeferred && !v.SearchActive()
	s.mu.Unlock()
	if flush {
		s.RequestRender()
	}
}

// RequestRender przerysowuje listę, chyba że trwa wyszukiwanie; wtedy
// zapamiętuje zaległość i zwraca false.
func (s *AppState) RequestRender() bool {
	s.mu.Lock()
	if s.view.SearchActive() {
		s.renderDeferred = true
		s.mu.Unlock()
		return false
	}
	s.renderDeferred = false
	r := s.renderer
	list := filter(s.products, s.view.Category)
	s.mu.Unlock()

	if r != nil {
		r.RenderProducts(list)
	}
	return true
}

func (s *AppState) RenderDeferred() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderDeferred
}

// Visible: lista po filtrze kategorii.
func (s *AppState) Visible() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.products, s.view.Category)
}

func filter(list []model.Product, category string) []model.Product {
	out := make([]model.Product, 0, len(list))
	for _, p := range list {
		if p.InCategory(category) {
			out = append(out, p)
		}
	}
	return out
}
