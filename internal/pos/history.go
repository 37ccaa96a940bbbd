package pos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/outbox"
)

// HistorySave: wpis jest zawsze zapisany lokalnie; Synced/Error mówią,
// co stało się ze zdalną kopią.
type HistorySave struct {
	Entry  model.HistoryEntry `json:"entry"`
	Synced bool               `json:"synced"`
	Error  string             `json:"error,omitempty"`
}

func (s *Service) ProductHistory(ctx context.Context, productID string) ([]model.HistoryEntry, error) {
	return s.local.GetProductHistory(ctx, productID)
}

// SaveHistoryEntry zapisuje lokalnie (z outboxem), a online od razu wysyła.
// Po potwierdzeniu wpis w outboxie jest zbędny i znika.
func (s *Service) SaveHistoryEntry(ctx context.Context, e model.HistoryEntry) (HistorySave, error) {
	if err := s.check(e); err != nil {
		return HistorySave{}, err
	}
	saved, err := s.local.SaveHistoryEntry(ctx, e)
	if err != nil {
		return HistorySave{}, err
	}
	s.touch()
	out := HistorySave{Entry: saved}
	if !s.sync.Online() {
		return out, nil
	}

	if err := s.remote.UpsertHistory(ctx, saved); err != nil {
		s.log.Warn().Err(err).Str("entry", saved.ID).Msg("zapis historii w chmurze nieudany, zostaje w kolejce")
		out.Error = err.Error()
		return out, nil
	}
	if err := s.local.ClearPendingForRecord(ctx, outbox.TableHistory, saved.ID); err != nil {
		return out, err
	}
	if err := s.local.MarkAsSynced(ctx, outbox.TableHistory, saved.ID); err != nil {
		return out, err
	}
	out.Entry.SyncStatus = model.SyncSynced
	out.Synced = true
	return out, nil
}

func (s *Service) DeleteHistoryEntry(ctx context.Context, id string) error {
	if err := s.local.DeleteHistoryEntry(ctx, id); err != nil {
		return err
	}
	s.touch()
	return nil
}

// SalesHistory łączy sprzedaż z chmury z lokalną; lokalny wpis czekający na
// wysłanie wygrywa po id. Offline albo przy błędzie chmury zostaje lokalna lista.
func (s *Service) SalesHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	local, err := s.local.GetSalesHistory(ctx)
	if err != nil {
		return nil, err
	}
	if !s.sync.Online() {
		return local, nil
	}
	cloud, err := s.remote.FetchSales(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("historia sprzedaży z chmury niedostępna")
		return local, nil
	}

	byID := make(map[string]model.HistoryEntry, len(cloud)+len(local))
	for _, e := range cloud {
		byID[e.ID] = e
	}
	for _, e := range local {
		if _, inCloud := byID[e.ID]; !inCloud || e.SyncStatus == model.SyncPending {
			byID[e.ID] = e
		}
	}
	out := make([]model.HistoryEntry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// periodRange: today od północy, week/month jako ostatnie 7/30 dni, all bez granic.
func periodRange(p Period, now time.Time) (time.Time, time.Time, error) {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), time.Time{}, nil
	case PeriodWeek:
		return now.AddDate(0, 0, -7), time.Time{}, nil
	case PeriodMonth:
		return now.AddDate(0, 0, -30), time.Time{}, nil
	case PeriodAll:
		return time.Time{}, time.Time{}, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrValidation, p)
	}
}

// ClearHistoryByPeriod kasuje historię w chmurze i lokalnie. Chmura jest
// źródłem prawdy, więc offline operacja jest odrzucana.
func (s *Service) ClearHistoryByPeriod(ctx context.Context, p Period) (int64, error) {
	from, to, err := periodRange(p, s.now())
	if err != nil {
		return 0, err
	}
	return s.clearHistory(ctx, from, to)
}

// ClearHistoryByDate kasuje jeden dzień kalendarzowy (strefa daty).
func (s *Service) ClearHistoryByDate(ctx context.Context, day time.Time) (int64, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return s.clearHistory(ctx, from, from.AddDate(0, 0, 1))
}

func (s *Service) clearHistory(ctx context.Context, from, to time.Time) (int64, error) {
	if !s.sync.Online() {
		return 0, ErrOffline
	}
	from, to = utc(from), utc(to)
	n, err := s.remote.DeleteHistoryRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	// niewysłane wpisy z zakresu wróciłyby przy następnym push
	ids, err := s.local.HistoryIDsInRange(ctx, from, to)
	if err != nil {
		return n, err
	}
	for _, id := range ids {
		if err := s.local.ClearPendingForRecord(ctx, outbox.TableHistory, id); err != nil {
			return n, err
		}
	}
	if _, err := s.local.PurgeHistoryRange(ctx, from, to); err != nil {
		return n, err
	}
	s.log.Info().Time("from", from).Time("to", to).Int64("remote", n).Msg("historia wyczyszczona")
	return n, nil
}

// utc: zero-value zostaje zerem (brak granicy).
func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
