package pos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/outbox"
	"github.com/bartek5186/pos2cloud/internal/state"
	"github.com/bartek5186/pos2cloud/internal/syncer"
)

type fakeRemote struct {
	mu      sync.Mutex
	history map[string]model.HistoryEntry
	sales   []model.HistoryEntry
	err     error
	cleared [][2]time.Time
}

func (f *fakeRemote) UpsertHistory(_ context.Context, e model.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.history[e.ID] = e
	return nil
}

func (f *fakeRemote) FetchSales(context.Context) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sales, f.err
}

func (f *fakeRemote) DeleteHistoryRange(_ context.Context, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.cleared = append(f.cleared, [2]time.Time{from, to})
	return 3, nil
}

type stubSync struct {
	online bool
	busy   bool
	pulls  int
}

func (s *stubSync) Online() bool { return s.online }
func (s *stubSync) FullSync(context.Context) syncer.FullResult {
	return syncer.FullResult{Status: syncer.StatusSuccess}
}
func (s *stubSync) SyncToCloud(context.Context) syncer.PushResult {
	return syncer.PushResult{Success: true}
}
func (s *stubSync) SyncFromCloud(context.Context) syncer.PullResult {
	s.pulls++
	return syncer.PullResult{Success: true}
}
func (s *stubSync) ResetAndPull(ctx context.Context, reset func(context.Context) error) syncer.PullResult {
	if s.busy {
		return syncer.PullResult{Reason: syncer.ReasonAlreadySyncing}
	}
	if err := reset(ctx); err != nil {
		return syncer.PullResult{Reason: syncer.ReasonError, Err: err}
	}
	return s.SyncFromCloud(ctx)
}

type fixture struct {
	svc    *Service
	local  *db.Handle
	remote *fakeRemote
	sync   *stubSync
	now    time.Time
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	local, err := db.OpenAt(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, local.Migrate())
	t.Cleanup(func() { _ = local.Close() })
	local.SetOrigin("device-a")

	f := &fixture{
		local:  local,
		remote: &fakeRemote{history: map[string]model.HistoryEntry{}},
		sync:   &stubSync{online: online},
		now:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	local.SetClock(func() time.Time { return f.now })
	f.svc = New(zerolog.Nop(), local, f.remote, f.sync, nil, nil, state.New(nil))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func ptr[T any](v T) *T { return &v }

func TestSaveProductValidatesMergedRecord(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.SaveProduct(ctx, model.ProductPatch{Quantity: ptr(3)}, false)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Name(required)")

	p, err := f.svc.SaveProduct(ctx, model.ProductPatch{Name: ptr("Agua"), Quantity: ptr(3)}, false)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.SyncPending, p.SyncStatus)

	// częściowa zmiana bez nazwy przechodzi, bo nazwa pochodzi z bazy
	p, err = f.svc.SaveProduct(ctx, model.ProductPatch{ID: ptr(p.ID), Quantity: ptr(9)}, true)
	require.NoError(t, err)
	assert.Equal(t, "Agua", p.Name)

	_, err = f.svc.SaveProduct(ctx, model.ProductPatch{ID: ptr(p.ID), Quantity: ptr(-1)}, true)
	assert.ErrorIs(t, err, ErrValidation)

	got, ok := f.svc.State().Find(p.ID)
	require.True(t, ok)
	assert.Equal(t, 9, got.Quantity)
	assert.Equal(t, f.now, f.svc.State().LastLocalMutation())

	n, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDeleteProductRemovesFromState(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p, err := f.svc.SaveProduct(ctx, model.ProductPatch{Name: ptr("Pan")}, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProduct(ctx, p.ID))
	_, ok := f.svc.State().Find(p.ID)
	assert.False(t, ok)
	_, err = f.svc.Product(ctx, p.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdateStockQueuesAbsoluteValue(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p, err := f.svc.SaveProduct(ctx, model.ProductPatch{Name: ptr("Leche"), Quantity: ptr(4)}, false)
	require.NoError(t, err)

	_, err = f.svc.UpdateStock(ctx, p.ID, -2)
	assert.ErrorIs(t, err, ErrValidation)

	p, err = f.svc.UpdateStock(ctx, p.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Quantity)

	ops, err := f.local.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, string(outbox.KindUpdate), ops[1].OperationType)
}

func TestSaveHistoryOnlineClearsOutbox(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{
		ProductID: "X", ActionType: model.ActionSale, Quantity: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, model.SyncSynced, res.Entry.SyncStatus)
	assert.Contains(t, f.remote.history, res.Entry.ID)

	n, err := f.local.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveHistoryRemoteFailureStaysQueued(t *testing.T) {
	f := newFixture(t, true)
	f.remote.err = assert.AnError
	ctx := context.Background()

	res, err := f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{
		ProductID: "X", ActionType: model.ActionSale, Quantity: 1,
	})
	require.NoError(t, err)
	assert.False(t, res.Synced)
	assert.NotEmpty(t, res.Error)

	n, err := f.local.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{ProductID: "X", ActionType: "regalo", Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSalesHistoryMergesPendingLocal(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	local, err := f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{
		ID: "h1", ProductID: "X", ActionType: model.ActionSale, Quantity: 5,
	})
	require.NoError(t, err)

	// offline: tylko lokalnie
	list, err := f.svc.SalesHistory(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	f.sync.online = true
	f.remote.sales = []model.HistoryEntry{
		{ID: "h1", ProductID: "X", ActionType: model.ActionSale, Quantity: 1, CreatedAt: local.Entry.CreatedAt},
		{ID: "h0", ProductID: "Y", ActionType: model.ActionSale, Quantity: 1, CreatedAt: f.now.Add(-time.Hour)},
	}
	list, err = f.svc.SalesHistory(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].ID)
	assert.Equal(t, 5, list[0].Quantity)
	assert.Equal(t, "h0", list[1].ID)

	f.remote.err = assert.AnError
	list, err = f.svc.SalesHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClearHistoryRequiresConnection(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.ClearHistoryByPeriod(context.Background(), PeriodAll)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Empty(t, f.remote.cleared)
}

func TestClearHistoryByPeriod(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	old := f.now.Add(-10 * 24 * time.Hour)
	_, err := f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{ID: "old", ProductID: "X", ActionType: model.ActionSale, Quantity: 1, CreatedAt: old})
	require.NoError(t, err)
	_, err = f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{ID: "new", ProductID: "X", ActionType: model.ActionSale, Quantity: 1, CreatedAt: f.now.Add(-time.Hour)})
	require.NoError(t, err)

	f.sync.online = true
	n, err := f.svc.ClearHistoryByPeriod(ctx, PeriodWeek)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Len(t, f.remote.cleared, 1)
	assert.Equal(t, f.now.AddDate(0, 0, -7), f.remote.cleared[0][0])
	assert.True(t, f.remote.cleared[0][1].IsZero())

	rest, err := f.local.GetSalesHistory(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "old", rest[0].ID)

	// zostaje tylko upsert starego wpisu
	ops, err := f.local.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "old", ops[0].RecordID)

	_, err = f.svc.ClearHistoryByPeriod(ctx, "year")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClearHistoryByDateUsesCalendarDay(t *testing.T) {
	f := newFixture(t, true)
	day := time.Date(2026, 3, 5, 18, 30, 0, 0, time.UTC)
	_, err := f.svc.ClearHistoryByDate(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, f.remote.cleared, 1)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), f.remote.cleared[0][0])
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), f.remote.cleared[0][1])
}

func TestClearHistoryByDateOutsideUTC(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	warsaw := time.FixedZone("CET", 3600)

	// 23:30 UTC to już 6 marca w Warszawie
	_, err := f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{ID: "late", ProductID: "X", ActionType: model.ActionSale, Quantity: 1,
		CreatedAt: time.Date(2026, 3, 5, 23, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = f.svc.SaveHistoryEntry(ctx, model.HistoryEntry{ID: "before", ProductID: "X", ActionType: model.ActionSale, Quantity: 1,
		CreatedAt: time.Date(2026, 3, 5, 22, 30, 0, 0, time.UTC)})
	require.NoError(t, err)

	f.sync.online = true
	_, err = f.svc.ClearHistoryByDate(ctx, time.Date(2026, 3, 6, 12, 0, 0, 0, warsaw))
	require.NoError(t, err)
	require.Len(t, f.remote.cleared, 1)
	assert.True(t, time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC).Equal(f.remote.cleared[0][0]))
	assert.True(t, time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC).Equal(f.remote.cleared[0][1]))

	rest, err := f.local.GetSalesHistory(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "before", rest[0].ID)

	ops, err := f.local.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "before", ops[0].RecordID)
}

func TestReloadFromCloud(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.svc.SaveProduct(ctx, model.ProductPatch{Name: ptr("Café")}, false)
	require.NoError(t, err)

	_, err = f.svc.ReloadFromCloud(ctx)
	assert.ErrorIs(t, err, ErrOffline)

	f.sync.online = true
	_, err = f.svc.ReloadFromCloud(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sync.pulls)
	n, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.svc.State().Products())
}

func TestReloadWhileSyncingKeepsLocalData(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p, err := f.svc.SaveProduct(ctx, model.ProductPatch{Name: ptr("Café")}, false)
	require.NoError(t, err)

	f.sync.busy = true
	_, err = f.svc.ReloadFromCloud(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, f.sync.pulls)

	_, err = f.local.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	n, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.svc.State().Products(), 1)
}
