// Package netstate dostarcza sygnał łączności: bieżące online/offline oraz
// powiadomienia przy zmianie stanu.
package netstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Probe sprawdza osiągalność zdalnego magazynu.
type Probe func(ctx context.Context) error

type Monitor struct {
	log      zerolog.Logger
	probe    Probe
	interval time.Duration

	mu     sync.RWMutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

func New(log zerolog.Logger, probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		log:      log.With().Str("component", "netstate").Logger(),
		probe:    probe,
		interval: interval,
		subs:     map[int]func(bool){},
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe rejestruje callback wołany przy każdej zmianie stanu.
// Zwraca funkcję wyrejestrowującą.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline ustawia stan; subskrybenci dostają tylko zbocza.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if online {
		m.log.Info().Msg("online")
	} else {
		m.log.Warn().Msg("offline")
	}
	for _, fn := range subs {
		fn(online)
	}
}

// Check wykonuje jedną próbę i aktualizuje stan.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.probe(pctx)
	if err != nil && ctx.Err() == nil {
		m.log.Debug().Err(err).Msg("probe failed")
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run sonduje do ctx.Done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
