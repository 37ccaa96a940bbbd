// Package notify rozsyła zdarzenia dla warstwy prezentacji (toasty, badge).
package notify

import (
	"sync"
	"time"
)

type Kind string

const (
	ProductChanged Kind = "product_changed"
	ProductAdded   Kind = "product_added"
	ProductRemoved Kind = "product_removed"
	SyncPulse      Kind = "sync_pulse"
	SyncStatus     Kind = "sync_status"
	NetworkChanged Kind = "network"
)

type Event struct {
	Kind      Kind      `json:"kind"`
	ProductID string    `json:"product_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	OldQty    *int      `json:"old_quantity,omitempty"`
	NewQty    *int      `json:"new_quantity,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Hub: fan-out bez blokowania: wolny odbiorca traci zdarzenia, nie blokuje nadawcy.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: map[int]chan Event{}, now: time.Now}
}

func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
