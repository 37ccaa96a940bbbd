// Package integrations trzyma rejestr fabryk dodatków uruchamianych razem
// z synchronizacją (np. importer katalogu). Pakiety rejestrują się w init().
package integrations

import (
	"slices"
	"sync"
)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register podpina fabrykę pod nazwę klucza z sekcji `integrations` configa.
// Drugie wywołanie z tą samą nazwą to błąd programisty.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("integrations: fabryka " + name + " zarejestrowana dwa razy")
	}
	factories[name] = f
}

func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Names zwraca posortowane nazwy znanych integracji (do logów i diagnostyki).
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
