// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	conf "github.com/bartek5186/pos2cloud/internal/config"
	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/integrations"
	_ "github.com/bartek5186/pos2cloud/internal/integrations/importer"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/observability"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
)

// Remote: zdalne operacje używane przez push/pull (*remote.Store).
type Remote interface {
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	UpsertProduct(ctx context.Context, p model.Product) error
	SetProductQuantity(ctx context.Context, patch remote.StockPatch) error
	DeleteProduct(ctx context.Context, id string) error
	UpsertHistory(ctx context.Context, e model.HistoryEntry) error
	DeleteHistory(ctx context.Context, id string) error
}

// Connectivity: sygnał online/offline (*netstate.Monitor).
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) func()
}

// ImagePublisher wysyła zdjęcia zrobione offline (local-image:...) i zwraca
// publiczny URL.
type ImagePublisher interface {
	IsLocal(ref string) bool
	PublishLocal(ctx context.Context, ref string) (string, error)
}

type Options struct {
	State   *state.AppState
	Hub     *notify.Hub
	Metrics *observability.Metrics
	Images  ImagePublisher
}

// wrapper na uruchomioną integrację (np. importer katalogu)
type runningInt struct {
	Name string
	Inst integrations.Integration
}

type Syncer struct {
	log    zerolog.Logger
	local  *db.Handle
	remote Remote
	net    Connectivity
	opts   Options

	syncing atomic.Bool // jeden cykl push/pull naraz

	mu       sync.Mutex
	cfg      *conf.Config
	deps     integrations.Deps
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ints     []runningInt
	unsubNet func()
	debounce *time.Timer
}

func New(log zerolog.Logger, cfg *conf.Config, local *db.Handle, rem Remote, net Connectivity, opts Options) *Syncer {
	return &Syncer{
		log:    log.With().Str("component", "syncer").Logger(),
		cfg:    cfg,
		local:  local,
		remote: rem,
		net:    net,
		opts:   opts,
	}
}

// SetIntegrationDeps: zależności przekazywane fabrykom integracji przy Start.
func (s *Syncer) SetIntegrationDeps(d integrations.Deps) {
	s.mu.Lock()
	s.deps = d
	s.mu.Unlock()
}

func (s *Syncer) Online() bool {
	return s.net != nil && s.net.Online()
}

func (s *Syncer) IsSyncing() bool { return s.syncing.Load() }

func (s *Syncer) config() *conf.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return conf.Defaults()
	}
	return s.cfg
}

// Start: pull na starcie (jeśli online), potem cykliczny push, pełna
// synchronizacja po powrocie sieci i integracje.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	// zbuduj i odpal integracje
	ints := s.buildIntegrationsLocked()
	s.ints = ints
	if s.net != nil {
		s.unsubNet = s.net.Subscribe(func(online bool) { s.onNetworkChange(ctx, online) })
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: start")
	go s.loop(ctx)

	// każda integracja w swojej gorutinie
	for i := range ints {
		s.wg.Add(1)
		go func(intg integrations.Integration) {
			defer s.wg.Done()
			if err := intg.Start(ctx); err != nil {
				s.log.Error().Err(err).Str("integration", intg.Name()).Msg("zakończona z błędem")
			}
		}(ints[i].Inst)
	}
	return nil
}

func (s *Syncer) buildIntegrationsLocked() []runningInt {
	var out []runningInt
	if s.cfg == nil || len(s.cfg.Integrations) == 0 {
		s.log.Warn().Msg("Integrations: brak lub puste (sprawdź config.json)")
		return out
	}
	for name, raw := range s.cfg.Integrations {
		f, ok := integrations.Get(name)
		if !ok {
			s.log.Warn().Str("integration", name).Strs("known", integrations.Names()).Msg("brak fabryki – pomijam")
			continue
		}
		inst, err := f(s.log.With().Str("integration", name).Logger(), json.RawMessage(raw), s.deps)
		if err != nil {
			s.log.Error().Err(err).Str("integration", name).Msg("błąd inicjalizacji")
			continue
		}
		out = append(out, runningInt{Name: name, Inst: inst})
	}
	s.log.Info().Int("started", len(out)).Msg("Integrations built")
	return out
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	ints := s.ints
	unsub := s.unsubNet
	if s.debounce != nil {
		if s.debounce.Stop() {
			s.wg.Done()
		}
		s.debounce = nil
	}
	s.ints = nil
	s.cancel = nil
	s.unsubNet = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, ri := range ints {
		ri.Inst.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Syncer: stop")
}

func (s *Syncer) UpdateConfig(cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: config zaktualizowany")

	if isRunning {
		// szybki restart, żeby interwały i integracje wzięły nową konfigurację
		s.Stop()
		_ = s.Start(context.Background())
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	// odtworzenie stanu po resecie lokalnej bazy
	if s.Online() {
		if res := s.SyncFromCloud(ctx); res.Err != nil {
			s.log.Warn().Err(res.Err).Msg("pull na starcie nieudany")
		}
	}

	interval := s.config().SyncInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Syncer: koniec pętli")
			return
		case <-ticker.C:
			if !s.Online() {
				continue
			}
			res := s.SyncToCloud(ctx)
			if res.Synced > 0 || res.Errors > 0 {
				s.log.Info().Int("synced", res.Synced).Int("errors", res.Errors).Msg("auto-push")
			}
		}
	}
}

func (s *Syncer) onNetworkChange(ctx context.Context, online bool) {
	s.opts.Hub.Publish(notify.Event{Kind: notify.NetworkChanged, Message: onlineLabel(online)})
	if !online {
		return
	}
	delay := s.config().OnlineDebounce()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	// odłożony FullSync liczy się do wg, żeby Stop poczekał aż skończy
	if s.debounce != nil && s.debounce.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	s.debounce = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		if ctx.Err() != nil || !s.Online() {
			return
		}
		s.FullSync(ctx)
	})
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
