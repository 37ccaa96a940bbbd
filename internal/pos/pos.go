// Package pos to fasada dla warstwy prezentacji: produkty, stany, historia,
// synchronizacja i zdjęcia. Każdy zapis idzie najpierw do lokalnej bazy.
package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
	"github.com/bartek5186/pos2cloud/internal/stock"
	"github.com/bartek5186/pos2cloud/internal/syncer"
)

var (
	ErrOffline    = errors.New("pos: operation requires connection")
	ErrValidation = errors.New("pos: validation failed")
	ErrBusy       = errors.New("pos: sync already in progress")
)

// Remote: operacje wykonywane od razu, poza outboxem.
type Remote interface {
	UpsertHistory(ctx context.Context, e model.HistoryEntry) error
	FetchSales(ctx context.Context) ([]model.HistoryEntry, error)
	DeleteHistoryRange(ctx context.Context, from, to time.Time) (int64, error)
}

// Sync: *syncer.Syncer.
type Sync interface {
	Online() bool
	FullSync(ctx context.Context) syncer.FullResult
	SyncToCloud(ctx context.Context) syncer.PushResult
	SyncFromCloud(ctx context.Context) syncer.PullResult
	ResetAndPull(ctx context.Context, reset func(context.Context) error) syncer.PullResult
}

// Images: *images.Store.
type Images interface {
	GetOrFetch(ctx context.Context, url string) string
	Capture(ctx context.Context, blob []byte, contentType string) (string, error)
}

type Service struct {
	log      zerolog.Logger
	local    *db.Handle
	remote   Remote
	sync     Sync
	stock    *stock.Decrementer
	images   Images
	state    *state.AppState
	validate *validator.Validate
	now      func() time.Time
}

func New(log zerolog.Logger, local *db.Handle, rem Remote, sync Sync, dec *stock.Decrementer, img Images, st *state.AppState) *Service {
	return &Service{
		log:      log.With().Str("component", "pos").Logger(),
		local:    local,
		remote:   rem,
		sync:     sync,
		stock:    dec,
		images:   img,
		state:    st,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

func (s *Service) State() *state.AppState { return s.state }

// check zamienia błędy walidatora na ErrValidation z listą pól.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func (s *Service) touch() { s.state.TouchLocalMutation(s.now()) }

// LoadProducts czyta listę z lokalnej bazy do stanu aplikacji.
func (s *Service) LoadProducts(ctx context.Context) ([]model.Product, error) {
	list, err := s.local.GetAllProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.state.SetProducts(list)
	s.state.RequestRender()
	return list, nil
}

func (s *Service) Product(ctx context.Context, id string) (model.Product, error) {
	return s.local.GetProduct(ctx, id)
}

// SaveProduct waliduje wynik scalenia i zapisuje lokalnie (z outboxem).
func (s *Service) SaveProduct(ctx context.Context, data model.ProductPatch, isUpdate bool) (model.Product, error) {
	candidate := model.NewProduct("")
	if isUpdate && data.ID != nil {
		if cur, err := s.local.GetProduct(ctx, *data.ID); err == nil {
			candidate = cur
		} else if !errors.Is(err, db.ErrNotFound) {
			return model.Product{}, err
		}
	}
	data.Apply(&candidate)
	if err := s.check(candidate); err != nil {
		return model.Product{}, err
	}

	p, err := s.local.SaveProduct(ctx, data, isUpdate)
	if err != nil {
		return model.Product{}, err
	}
	s.touch()
	s.state.Put(p)
	s.state.RequestRender()
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.local.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.touch()
	s.state.Remove(id)
	s.state.RequestRender()
	return nil
}

// DecrementStock: sprzedaż; szczegóły w pakiecie stock.
func (s *Service) DecrementStock(ctx context.Context, id string, amount int) (stock.Result, error) {
	res, err := s.stock.Decrement(ctx, id, amount)
	if err != nil {
		return res, err
	}
	s.state.RequestRender()
	return res, nil
}

// UpdateStock ustawia stan bezwzględnie (inwentaryzacja), przez outbox.
func (s *Service) UpdateStock(ctx context.Context, id string, quantity int) (model.Product, error) {
	if quantity < 0 {
		return model.Product{}, fmt.Errorf("%w: quantity %d", ErrValidation, quantity)
	}
	p, _, err := s.local.UpdateProductStock(ctx, id, quantity)
	if err != nil {
		return model.Product{}, err
	}
	s.touch()
	s.state.Put(p)
	s.state.RequestRender()
	return p, nil
}

func (s *Service) SetView(v state.View) { s.state.SetView(v) }

// ImageURL: adres do wyświetlenia (lokalny cache albo oryginał).
func (s *Service) ImageURL(ctx context.Context, url string) string {
	if s.images == nil {
		return url
	}
	return s.images.GetOrFetch(ctx, url)
}

// CaptureImage zapisuje zdjęcie offline i przypina je do produktu.
func (s *Service) CaptureImage(ctx context.Context, productID string, blob []byte, contentType string) (model.Product, error) {
	if s.images == nil {
		return model.Product{}, errors.New("pos: images disabled")
	}
	ref, err := s.images.Capture(ctx, blob, contentType)
	if err != nil {
		return model.Product{}, err
	}
	return s.SaveProduct(ctx, model.ProductPatch{ID: &productID, ImageURL: &ref}, true)
}

// FullSync: wymuszona synchronizacja (push, potem pull).
func (s *Service) FullSync(ctx context.Context) syncer.FullResult {
	return s.sync.FullSync(ctx)
}

// ReloadFromCloud czyści lokalną bazę i pobiera wszystko z chmury. Niewysłane
// operacje przepadają, więc wymaga połączenia. Gdy trwa inny cykl, baza
// zostaje nietknięta i wraca ErrBusy.
func (s *Service) ReloadFromCloud(ctx context.Context) (syncer.PullResult, error) {
	if !s.sync.Online() {
		return syncer.PullResult{Reason: syncer.ReasonOffline}, ErrOffline
	}
	res := s.sync.ResetAndPull(ctx, func(ctx context.Context) error {
		if err := s.local.ClearForCloudReload(ctx); err != nil {
			return err
		}
		s.state.SetProducts(nil)
		s.log.Warn().Msg("lokalna baza wyczyszczona, pobieram z chmury")
		return nil
	})
	switch {
	case res.Reason == syncer.ReasonOffline:
		return res, ErrOffline
	case res.Reason == syncer.ReasonAlreadySyncing:
		return res, ErrBusy
	case res.Err != nil:
		return res, fmt.Errorf("reload from cloud: %w", res.Err)
	}
	return res, nil
}

// Status: dane dla wskaźnika online i licznika oczekujących.
type Status struct {
	Online  bool  `json:"online"`
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	pending, err := s.local.GetPendingCount(ctx)
	if err != nil {
		return Status{}, err
	}
	dead, err := s.local.GetDeadCount(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Online: s.sync.Online(), Pending: pending, Dead: dead}, nil
}

func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.local.GetPendingCount(ctx)
}

func (s *Service) DeadOperations(ctx context.Context) ([]db.PendingOperation, error) {
	return s.local.GetDeadOperations(ctx)
}

func (s *Service) RequeueDead(ctx context.Context) (int64, error) {
	return s.local.RequeueDead(ctx)
}

var _ Remote = (*remote.Store)(nil)
