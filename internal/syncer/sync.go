package syncer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/outbox"
	"github.com/bartek5186/pos2cloud/internal/remote"
)

// Reason: oczekiwany powód niewykonania cyklu; to nie jest błąd.
type Reason string

const (
	ReasonOffline        Reason = "offline"
	ReasonAlreadySyncing Reason = "already_syncing"
	ReasonError          Reason = "error"
)

type PushResult struct {
	Success bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Synced  int    `json:"synced"`
	Errors  int    `json:"errors"`
	Dead    int    `json:"dead,omitempty"`
}

type PullResult struct {
	Success  bool   `json:"success"`
	Reason   Reason `json:"reason,omitempty"`
	Products int    `json:"products"`
	History  int    `json:"history"`
	Kept     int    `json:"kept_local,omitempty"` // produkty chronione przez lokalne zmiany
	Err      error  `json:"-"`
}

type Status string

const (
	StatusOffline        Status = "offline"
	StatusAlreadySyncing Status = "already_syncing" // trwa inny cykl, nic nie zrobiono
	StatusPending        Status = "pending"
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
)

type FullResult struct {
	Status  Status     `json:"status"`
	Push    PushResult `json:"push"`
	Pull    PullResult `json:"pull"`
	Pending int64      `json:"pending"`
}

func (s *Syncer) acquire() (Reason, bool) {
	if !s.Online() {
		return ReasonOffline, false
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return ReasonAlreadySyncing, false
	}
	return "", true
}

// SyncToCloud wysyła outbox w kolejności FIFO. Błąd jednej operacji nie
// zatrzymuje pozostałych; operacja zostaje w kolejce do następnego cyklu.
func (s *Syncer) SyncToCloud(ctx context.Context) PushResult {
	if reason, ok := s.acquire(); !ok {
		return PushResult{Reason: reason}
	}
	defer s.syncing.Store(false)
	return s.push(ctx)
}

func (s *Syncer) push(ctx context.Context) PushResult {
	ops, err := s.local.GetPendingOperations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("odczyt outboxa nieudany")
		return PushResult{Reason: ReasonError}
	}

	res := PushResult{Success: true}
	maxAttempts := s.config().MaxAttempts
	pushed := map[outbox.Table]map[string]struct{}{}

	for _, row := range ops {
		if ctx.Err() != nil {
			break
		}
		op, err := row.Decode()
		if err == nil {
			err = s.apply(ctx, op)
		}
		if err != nil {
			res.Errors++
			s.opts.Metrics.PushOp(row.Table, "error")
			dead, ferr := s.local.RecordFailure(ctx, row.ID, err, maxAttempts)
			if ferr != nil {
				s.log.Error().Err(ferr).Uint("op", row.ID).Msg("zapis próby nieudany")
			}
			ev := s.log.Warn()
			if dead {
				res.Dead++
				s.opts.Metrics.PushOp(row.Table, "dead")
				ev = s.log.Error()
			}
			ev.Err(err).Uint("op", row.ID).Str("table", row.Table).Str("type", row.OperationType).
				Str("record", row.RecordID).Bool("dead", dead).Msg("operacja nie wysłana")
			continue
		}

		if err := s.local.ClearPendingOperation(ctx, row.ID); err != nil {
			// zdalnie już jest; ponowienie to idempotentny upsert
			s.log.Error().Err(err).Uint("op", row.ID).Msg("usunięcie z outboxa nieudane")
		}
		res.Synced++
		s.opts.Metrics.PushOp(row.Table, "synced")
		if op.Kind() != outbox.KindDelete {
			if pushed[op.Table()] == nil {
				pushed[op.Table()] = map[string]struct{}{}
			}
			pushed[op.Table()][op.RecordID()] = struct{}{}
		}
	}

	s.markPushed(ctx, pushed)
	s.reportQueue(ctx)
	return res
}

// markPushed: synced tylko gdy rekord nie ma już innych operacji w kolejce.
func (s *Syncer) markPushed(ctx context.Context, pushed map[outbox.Table]map[string]struct{}) {
	for table, ids := range pushed {
		still, err := s.local.PendingRecordIDs(ctx, table)
		if err != nil {
			s.log.Error().Err(err).Msg("odczyt outboxa nieudany")
			continue
		}
		for id := range ids {
			if _, ok := still[id]; ok {
				continue
			}
			if err := s.local.MarkAsSynced(ctx, table, id); err != nil {
				s.log.Error().Err(err).Str("record", id).Msg("mark synced nieudany")
				continue
			}
			if table == outbox.TableProducts && s.opts.State != nil {
				if p, ok := s.opts.State.Find(id); ok {
					p.SyncStatus = model.SyncSynced
					s.opts.State.Put(p)
				}
			}
		}
	}
}

func (s *Syncer) apply(ctx context.Context, op outbox.Op) error {
	switch o := op.(type) {
	case outbox.ProductUpsert:
		p, err := s.publishImage(ctx, o.Product)
		if err != nil {
			return err
		}
		return s.remote.UpsertProduct(ctx, p)
	case outbox.ProductStock:
		return s.remote.SetProductQuantity(ctx, remote.StockPatch{
			ID: o.ID, Quantity: o.Quantity, UpdatedAt: o.UpdatedAt, Origin: o.Origin,
		})
	case outbox.ProductDelete:
		return s.remote.DeleteProduct(ctx, o.ID)
	case outbox.HistoryUpsert:
		return s.remote.UpsertHistory(ctx, o.Entry)
	case outbox.HistoryDelete:
		return s.remote.DeleteHistory(ctx, o.ID)
	default:
		return fmt.Errorf("syncer: unhandled op %T", op)
	}
}

// publishImage podmienia local-image:... na publiczny URL przed wysłaniem produktu.
func (s *Syncer) publishImage(ctx context.Context, p model.Product) (model.Product, error) {
	img := s.opts.Images
	if img == nil || !img.IsLocal(p.ImageURL) {
		return p, nil
	}
	url, err := img.PublishLocal(ctx, p.ImageURL)
	if err != nil {
		return p, fmt.Errorf("upload image %s: %w", p.ID, err)
	}
	p.ImageURL = url
	if err := s.local.SetProductImage(ctx, p.ID, url); err != nil {
		s.log.Warn().Err(err).Str("product", p.ID).Msg("zapis URL zdjęcia lokalnie nieudany")
	}
	if s.opts.State != nil {
		if cur, ok := s.opts.State.Find(p.ID); ok {
			cur.ImageURL = url
			s.opts.State.Put(cur)
		}
	}
	return p, nil
}

// SyncFromCloud pobiera produkty i ostatnie wpisy historii. Produkt z lokalną,
// niewysłaną zmianą nowszą niż zdalna zostaje lokalny; resztę wygrywa chmura.
func (s *Syncer) SyncFromCloud(ctx context.Context) PullResult {
	if reason, ok := s.acquire(); !ok {
		return PullResult{Reason: reason}
	}
	defer s.syncing.Store(false)
	return s.pull(ctx)
}

// ResetAndPull czyści lokalny stan funkcją reset i pobiera wszystko z chmury.
// Oba kroki idą w jednym cyklu, więc nic nie kasuje danych w trakcie
// trwającego push/pull; wtedy reset w ogóle się nie wykonuje.
func (s *Syncer) ResetAndPull(ctx context.Context, reset func(context.Context) error) PullResult {
	if reason, ok := s.acquire(); !ok {
		return PullResult{Reason: reason}
	}
	defer s.syncing.Store(false)
	if err := reset(ctx); err != nil {
		return PullResult{Reason: ReasonError, Err: err}
	}
	return s.pull(ctx)
}

func (s *Syncer) pull(ctx context.Context) PullResult {
	var (
		products []model.Product
		history  []model.HistoryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.remote.FetchProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.remote.FetchHistory(gctx, s.config().HistoryLimit())
		return err
	})
	if err := g.Wait(); err != nil {
		s.opts.Metrics.Pull("error")
		s.log.Warn().Err(err).Msg("pobranie z chmury nieudane")
		return PullResult{Reason: ReasonError, Err: err}
	}

	merged, kept, err := s.merge(ctx, products)
	if err != nil {
		s.opts.Metrics.Pull("error")
		return PullResult{Reason: ReasonError, Err: err}
	}
	if err := s.local.BulkPutProducts(ctx, merged); err != nil {
		s.opts.Metrics.Pull("error")
		return PullResult{Reason: ReasonError, Err: err}
	}
	if err := s.local.BulkPutHistory(ctx, history); err != nil {
		s.opts.Metrics.Pull("error")
		return PullResult{Reason: ReasonError, Err: err}
	}

	s.refreshState(ctx)
	s.opts.Metrics.Pull("ok")
	s.opts.Hub.Publish(notify.Event{Kind: notify.SyncPulse, Message: "pull"})
	s.log.Info().Int("products", len(products)).Int("history", len(history)).Int("kept_local", kept).Msg("pull OK")
	return PullResult{Success: true, Products: len(products), History: len(history), Kept: kept}
}

// merge zwraca rekordy do zapisu; chronione lokalne wersje są pomijane,
// żeby zachowały status pending.
func (s *Syncer) merge(ctx context.Context, remoteList []model.Product) ([]model.Product, int, error) {
	pending, err := s.local.PendingRecordIDs(ctx, outbox.TableProducts)
	if err != nil {
		return nil, 0, err
	}
	if len(pending) == 0 {
		return remoteList, 0, nil
	}

	out := make([]model.Product, 0, len(remoteList))
	kept := 0
	for _, r := range remoteList {
		if _, isPending := pending[r.ID]; isPending {
			l, err := s.local.GetProduct(ctx, r.ID)
			switch {
			case err == nil:
				if l.UpdatedAt.After(r.UpdatedAt) {
					kept++
					continue
				}
			case !errors.Is(err, db.ErrNotFound):
				return nil, 0, err
			}
		}
		out = append(out, r)
	}
	return out, kept, nil
}

// FullSync: najpierw push (lokalne zmiany trafiają do chmury przed porównaniem
// LWW), potem pull, na koniec status dla UI. Push i pull idą w jednym cyklu.
func (s *Syncer) FullSync(ctx context.Context) FullResult {
	out := FullResult{}
	reason, ok := s.acquire()
	if !ok {
		out.Push = PushResult{Reason: reason}
		out.Pull = PullResult{Reason: reason}
		out.Pending, _ = s.local.GetPendingCount(ctx)
		out.Status = StatusOffline
		if reason == ReasonAlreadySyncing {
			out.Status = StatusAlreadySyncing
		}
		s.publishStatus(out)
		return out
	}

	func() {
		defer s.syncing.Store(false)
		out.Push = s.push(ctx)
		out.Pull = s.pull(ctx)
	}()
	out.Pending, _ = s.local.GetPendingCount(ctx)

	switch {
	case out.Push.Reason == ReasonOffline || out.Pull.Reason == ReasonOffline:
		out.Status = StatusOffline
	case out.Push.Reason == ReasonError || out.Pull.Reason == ReasonError:
		out.Status = StatusError
	case out.Pending > 0:
		out.Status = StatusPending
	default:
		out.Status = StatusSuccess
	}
	s.publishStatus(out)
	return out
}

func (s *Syncer) publishStatus(r FullResult) {
	msg := string(r.Status)
	if r.Status == StatusPending {
		msg = fmt.Sprintf("%d oczekujących", r.Pending)
	}
	s.opts.Hub.Publish(notify.Event{Kind: notify.SyncStatus, Message: msg})
	s.log.Info().Str("status", string(r.Status)).Int64("pending", r.Pending).
		Int("synced", r.Push.Synced).Int("errors", r.Push.Errors).Msg("full sync")
}

func (s *Syncer) refreshState(ctx context.Context) {
	if s.opts.State == nil {
		return
	}
	all, err := s.local.GetAllProducts(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("odczyt produktów nieudany")
		return
	}
	s.opts.State.SetProducts(all)
	s.opts.State.RequestRender()
}

func (s *Syncer) reportQueue(ctx context.Context) {
	if s.opts.Metrics == nil {
		return
	}
	pending, _ := s.local.GetPendingCount(ctx)
	dead, _ := s.local.GetDeadCount(ctx)
	s.opts.Metrics.QueueDepth(pending, dead)
}
