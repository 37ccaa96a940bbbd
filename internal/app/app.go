// Package app składa wszystkie komponenty w jawnej kolejności i zarządza
// ich cyklem życia (CLI, tray).
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	conf "github.com/bartek5186/pos2cloud/internal/config"
	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/httpapi"
	"github.com/bartek5186/pos2cloud/internal/images"
	"github.com/bartek5186/pos2cloud/internal/integrations"
	"github.com/bartek5186/pos2cloud/internal/logs"
	"github.com/bartek5186/pos2cloud/internal/netstate"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/observability"
	"github.com/bartek5186/pos2cloud/internal/pos"
	"github.com/bartek5186/pos2cloud/internal/realtime"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
	"github.com/bartek5186/pos2cloud/internal/stock"
	"github.com/bartek5186/pos2cloud/internal/syncer"
)

const Name = "pos2cloud"

// Options: skąd czytać config i gdzie pisać logi.
type Options struct {
	Dir     string // katalog danych; pusty = DataDir(Name)
	Console bool   // logi także na stdout
	Logger  *zerolog.Logger
}

type App struct {
	Log     zerolog.Logger
	Dir     string
	CfgPath string
	LogPath string
	Cfg     *conf.Config

	Local    *db.Handle
	Remote   *remote.Store
	Storage  *remote.ObjectStorage
	Net      *netstate.Monitor
	State    *state.AppState
	Hub      *notify.Hub
	Metrics  *observability.Metrics
	Images   *images.Store
	Syncer   *syncer.Syncer
	Stock    *stock.Decrementer
	POS      *pos.Service
	Realtime *realtime.Handler

	feed  realtime.Feed
	redis *redis.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	httpSrv *http.Server
	addr    string
}

// DataDir: katalog aplikacji w katalogu konfiguracji użytkownika.
func DataDir(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(base, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// New: config → logi → baza lokalna → zdalny magazyn → sygnał sieci → stan →
// powiadomienia → metryki → zdjęcia → synchronizacja → stany → fasada →
// realtime. Nic tu nie wymaga sieci.
func New(ctx context.Context, opts Options) (*App, error) {
	dir := opts.Dir
	if dir == "" {
		d, err := DataDir(Name)
		if err != nil {
			return nil, err
		}
		dir = d
	}
	a := &App{
		Dir:     dir,
		CfgPath: filepath.Join(dir, "config.json"),
		LogPath: filepath.Join(dir, "app.log"),
	}

	if opts.Logger != nil {
		a.Log = *opts.Logger
	} else {
		a.Log = logs.New(a.LogPath, opts.Console)
	}

	cfg, firstRun, err := conf.LoadOrCreate(a.CfgPath)
	if err != nil {
		return nil, err
	}
	if firstRun {
		a.Log.Info().Str("path", a.CfgPath).Msg("Utworzono domyślną konfigurację")
	}
	a.Cfg = cfg

	if err := a.openLocal(ctx); err != nil {
		return nil, err
	}
	if err := a.openRemote(); err != nil {
		_ = a.Local.Close()
		return nil, err
	}

	a.Net = netstate.New(a.Log, a.Remote.Ping, cfg.ProbeInterval())
	a.State = state.New(nil)
	a.Hub = notify.NewHub()
	a.Metrics = observability.NewMetrics()
	a.Images = images.New(a.Log, a.Local, a.Storage, cfg.HTTP.ImagePrefix)

	a.Syncer = syncer.New(a.Log, cfg, a.Local, a.Remote, a.Net, syncer.Options{
		State:   a.State,
		Hub:     a.Hub,
		Metrics: a.Metrics,
		Images:  a.Images,
	})
	a.Stock = stock.New(a.Log, a.Local, a.Remote, a.Net, a.State, a.Metrics)
	a.Stock.RequireAtomic = cfg.RequireAtomicDecrement
	a.POS = pos.New(a.Log, a.Local, a.Remote, a.Syncer, a.Stock, a.Images, a.State)
	a.Syncer.SetIntegrationDeps(integrations.Deps{DB: a.Local, Catalog: a.POS})

	a.Realtime = realtime.NewHandler(a.Log, a.Local, a.State, a.Hub, a.Metrics, cfg.EchoWindow())
	if err := a.setupFeed(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("kanał zmian niedostępny, działam bez realtime")
	}

	if _, err := a.POS.LoadProducts(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openLocal(ctx context.Context) error {
	var (
		h   *db.Handle
		err error
	)
	if a.Cfg.Local.Path != "" {
		h, err = db.Open(a.Cfg.Local.Path, a.Log)
	} else {
		h, err = db.OpenAt(a.Dir, a.Log)
	}
	if err != nil {
		return fmt.Errorf("local db: %w", err)
	}
	if err := h.Migrate(); err != nil {
		_ = h.Close()
		return fmt.Errorf("local db migrate: %w", err)
	}
	id, err := h.DeviceID(ctx)
	if err != nil {
		_ = h.Close()
		return err
	}
	h.SetOrigin(id)
	a.Local = h
	a.Log.Info().Str("db", h.Path).Str("device", id).Msg("DB ready")
	return nil
}

func (a *App) openRemote() error {
	st, err := remote.Open(a.Cfg.Remote.Driver, a.Cfg.Remote.DSN, a.Log)
	if err != nil {
		return err
	}
	st.SetTimeout(a.Cfg.RemoteTimeout())
	a.Remote = st
	s := a.Cfg.Storage
	a.Storage = remote.NewObjectStorage(s.BaseURL, s.Bucket, s.APIKey, s.PublicBaseURL)
	return nil
}

// setupFeed wybiera źródło zdarzeń. Dla redis zapisy remote.Store są też
// rozgłaszane na kanale, bo baza sama ich nie publikuje.
func (a *App) setupFeed(ctx context.Context) error {
	rt := a.Cfg.Realtime
	channel := rt.Channel
	if channel == "" {
		channel = remote.DefaultChannel
	}
	switch rt.Driver {
	case "", "none":
		return nil
	case remote.DriverPostgres:
		dsn := rt.DSN
		if dsn == "" {
			dsn = a.Cfg.Remote.DSN
		}
		a.feed = &realtime.PGFeed{DSN: dsn, Channel: channel}
	case "redis":
		client, err := realtime.NewRedisClient(ctx, rt.RedisAddr)
		if err != nil {
			return err
		}
		a.redis = client
		a.feed = &realtime.RedisFeed{Client: client, Channel: channel}
		a.Remote.SetPublisher(&realtime.RedisPublisher{Client: client, Channel: channel})
	default:
		return fmt.Errorf("unknown realtime driver %q", rt.Driver)
	}
	return nil
}

// Start uruchamia usługi w tle: monitor sieci, kanał zmian, HTTP API.
// Synchronizacja startuje od razu tylko przy auto_start.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)

	ln, err := net.Listen("tcp", a.Cfg.HTTP.Addr)
	if err != nil {
		cancel()
		return fmt.Errorf("http listen %s: %w", a.Cfg.HTTP.Addr, err)
	}
	a.cancel = cancel
	srv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Params{
			Logger:      a.Log,
			Service:     a.POS,
			Hub:         a.Hub,
			Images:      a.Images,
			Metrics:     a.Metrics,
			ImagePrefix: a.Cfg.HTTP.ImagePrefix,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.httpSrv = srv

	a.Net.Check(ctx)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Net.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error().Err(err).Msg("HTTP API zatrzymane z błędem")
		}
	}()
	if a.feed != nil {
		l := realtime.NewListener(a.Log, a.feed, a.Realtime)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			l.Run(ctx)
		}()
	}
	a.addr = ln.Addr().String()
	a.Log.Info().Str("addr", a.addr).Msg("HTTP API działa")

	if a.Cfg.AutoStart {
		if err := a.Syncer.Start(ctx); err != nil {
			a.Log.Error().Err(err).Msg("AutoStart nieudany")
		}
	}
	return nil
}

// Addr: adres HTTP API po Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Reload czyta config ponownie i restartuje synchronizację.
func (a *App) Reload() error {
	cfg, _, err := conf.LoadOrCreate(a.CfgPath)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.Cfg = cfg
	a.mu.Unlock()
	a.Stock.RequireAtomic = cfg.RequireAtomicDecrement
	a.Remote.SetTimeout(cfg.RemoteTimeout())
	a.Syncer.UpdateConfig(cfg)
	a.Log.Info().Msg("Konfiguracja przeładowana")
	return nil
}

// Stop zatrzymuje usługi w tle; baza zostaje otwarta.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, srv := a.cancel, a.httpSrv
	a.cancel, a.httpSrv = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	a.Syncer.Stop()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	cancel()
	a.wg.Wait()
}

func (a *App) Close() {
	a.Stop()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Remote != nil {
		_ = a.Remote.Close()
	}
	if a.Local != nil {
		_ = a.Local.Close()
	}
}
