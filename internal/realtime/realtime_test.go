package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/remote"
	"github.com/bartek5186/pos2cloud/internal/state"
)

type fixture struct {
	h       *Handler
	local   *db.Handle
	app     *state.AppState
	events  <-chan notify.Event
	renders *int
	now     time.Time
}

func newFixture(t *testing.T, products ...model.Product) *fixture {
	t.Helper()
	local, err := db.OpenAt(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, local.Migrate())
	t.Cleanup(func() { _ = local.Close() })
	local.SetOrigin("device-a")
	require.NoError(t, local.BulkPutProducts(context.Background(), products))

	renders := 0
	app := state.New(state.RendererFunc(func([]model.Product) { renders++ }))
	app.SetProducts(products)
	hub := notify.NewHub()
	events, cancel := hub.Subscribe(16)
	t.Cleanup(cancel)

	f := &fixture{local: local, app: app, events: events, renders: &renders,
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.h = NewHandler(zerolog.Nop(), local, app, hub, nil, 2*time.Second)
	f.h.now = func() time.Time { return f.now }
	return f
}

func product(id, name string, qty int) model.Product {
	p := model.NewProduct(id)
	p.Name = name
	p.Quantity = qty
	p.Origin = "device-b"
	return p
}

func row(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func drain(ch <-chan notify.Event) []notify.Event {
	var out []notify.Event
	for len(ch) > 0 {
		out = append(out, <-ch)
	}
	return out
}

func TestEchoWithinWindowIsSuppressed(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	f.app.TouchLocalMutation(f.now.Add(-500 * time.Millisecond))

	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 3}),
	})
	assert.Equal(t, Echo, out)
	assert.Empty(t, drain(f.events))
	p, _ := f.app.Find("X")
	assert.Equal(t, 10, p.Quantity)

	// po oknie to samo zdarzenie jest przyjmowane
	f.now = f.now.Add(3 * time.Second)
	out = f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 3}),
	})
	assert.Equal(t, Applied, out)
}

func TestOwnOriginIsAlwaysEcho(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 1, "origin": "device-a"}),
	})
	assert.Equal(t, Echo, out)
}

func TestWriteStampOfThisDeviceIsEcho(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 1, "origin": f.local.Stamp()}),
	})
	assert.Equal(t, Echo, out)
	p, _ := f.app.Find("X")
	assert.Equal(t, 10, p.Quantity)
}

func TestForeignDeleteOfRowWeLastWrote(t *testing.T) {
	mine := product("X", "Soda", 10)
	mine.Origin = "device-a#1a2b3c4d"
	f := newFixture(t, mine)
	ctx := context.Background()

	// stary wiersz pamięta nas jako ostatniego piszącego, kasował ktoś inny
	out := f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventDelete,
		Old: row(t, map[string]any{"id": "X", "origin": "device-a#1a2b3c4d"}),
	})
	require.Equal(t, Applied, out)
	_, ok := f.app.Find("X")
	assert.False(t, ok)
	_, err := f.local.GetProduct(ctx, "X")
	assert.ErrorIs(t, err, db.ErrNotFound)
	evs := drain(f.events)
	require.Len(t, evs, 1)
	assert.Equal(t, notify.ProductRemoved, evs[0].Kind)
}

func TestForeignDeleteInsideEchoWindow(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	f.app.TouchLocalMutation(f.now)
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventDelete,
		Old: row(t, map[string]any{"id": "X"}),
	})
	assert.Equal(t, Applied, out)
	_, ok := f.app.Find("X")
	assert.False(t, ok)
}

func TestOwnDeleteComesBackAsEcho(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	ctx := context.Background()
	require.NoError(t, f.local.DeleteProduct(ctx, "X"))
	f.app.Remove("X")

	out := f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventDelete,
		Old: row(t, map[string]any{"id": "X", "origin": "device-a#1a2b3c4d"}),
	})
	assert.Equal(t, Echo, out)
	assert.Empty(t, drain(f.events))
}

func TestForeignOriginBypassesWindow(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	f.app.TouchLocalMutation(f.now)
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 7, "origin": "device-b"}),
	})
	assert.Equal(t, Applied, out)
}

func TestUpdateMergesAndNotifies(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	ctx := context.Background()

	out := f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 8, "origin": "device-b"}),
	})
	require.Equal(t, Applied, out)

	p, _ := f.app.Find("X")
	assert.Equal(t, "Soda", p.Name)
	assert.Equal(t, 8, p.Quantity)
	stored, err := f.local.GetProduct(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 8, stored.Quantity)
	assert.Equal(t, model.SyncSynced, stored.SyncStatus)

	evs := drain(f.events)
	require.Len(t, evs, 1)
	assert.Equal(t, notify.ProductChanged, evs[0].Kind)
	assert.Equal(t, 10, *evs[0].OldQty)
	assert.Equal(t, 8, *evs[0].NewQty)
	assert.Equal(t, "sprzedano na innym urządzeniu", evs[0].Message)

	f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 20, "origin": "device-b"}),
	})
	evs = drain(f.events)
	require.Len(t, evs, 1)
	assert.Equal(t, "uzupełniono stan", evs[0].Message)

	// zmiana nazwy bez zmiany stanu: bez toastu
	f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "name": "Soda 2L", "origin": "device-b"}),
	})
	assert.Empty(t, drain(f.events))
	assert.Equal(t, 3, *f.renders)
}

func TestInsertAndDelete(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	ctx := context.Background()

	out := f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventInsert,
		New: row(t, product("Y", "Pan", 4)),
	})
	require.Equal(t, Applied, out)
	list := f.app.Products()
	require.Len(t, list, 2)
	assert.Equal(t, "Y", list[0].ID)
	_, err := f.local.GetProduct(ctx, "Y")
	require.NoError(t, err)

	// drugi insert tego samego id nic nie robi
	assert.Equal(t, Ignored, f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventInsert, New: row(t, product("Y", "Pan", 4)),
	}))

	out = f.h.Handle(ctx, remote.Change{
		Table: "products", Type: remote.EventDelete,
		Old: row(t, map[string]any{"id": "X"}),
	})
	require.Equal(t, Applied, out)
	_, ok := f.app.Find("X")
	assert.False(t, ok)
	_, err = f.local.GetProduct(ctx, "X")
	assert.ErrorIs(t, err, db.ErrNotFound)

	kinds := []notify.Kind{}
	for _, e := range drain(f.events) {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []notify.Kind{notify.ProductAdded, notify.ProductRemoved}, kinds)
}

func TestSaleHistoryOnlyPulses(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "product_history", Type: remote.EventInsert,
		New: row(t, map[string]any{"id": "h1", "product_id": "X", "action_type": "venta", "origin": "device-b"}),
	})
	assert.Equal(t, Applied, out)
	evs := drain(f.events)
	require.Len(t, evs, 1)
	assert.Equal(t, notify.SyncPulse, evs[0].Kind)
	assert.Zero(t, *f.renders)

	out = f.h.Handle(context.Background(), remote.Change{
		Table: "product_history", Type: remote.EventInsert,
		New: row(t, map[string]any{"id": "h2", "product_id": "X", "action_type": "compra", "origin": "device-b"}),
	})
	assert.Equal(t, Ignored, out)
}

func TestActiveSearchDefersRender(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	f.app.SetView(state.View{Search: "sod"})

	f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate,
		New: row(t, map[string]any{"id": "X", "quantity": 9, "origin": "device-b"}),
	})
	assert.Zero(t, *f.renders)
	assert.True(t, f.app.RenderDeferred())
	p, _ := f.app.Find("X")
	assert.Equal(t, 9, p.Quantity)

	f.app.SetView(state.View{Category: "Bebidas"})
	assert.Equal(t, 1, *f.renders)
}

func TestMalformedRowFails(t *testing.T) {
	f := newFixture(t)
	out := f.h.Handle(context.Background(), remote.Change{
		Table: "products", Type: remote.EventUpdate, New: json.RawMessage(`[1,2]`),
	})
	assert.Equal(t, Failed, out)
}

func TestRedisFeedDeliversPublishedChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan remote.Change, 1)
	feed := &RedisFeed{Client: client, Channel: "pos_changes"}
	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, func(_ context.Context, c remote.Change) { got <- c })
	}()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("pos_changes")["pos_changes"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// śmieci są pomijane, subskrypcja trwa
	require.NoError(t, client.Publish(ctx, "pos_changes", "not json").Err())

	pub := &RedisPublisher{Client: client, Channel: "pos_changes"}
	require.NoError(t, pub.Publish(ctx, remote.Change{
		Table: "products", Type: remote.EventDelete, Old: json.RawMessage(`{"id":"X"}`),
	}))

	select {
	case c := <-got:
		assert.Equal(t, "products", c.Table)
		assert.Equal(t, remote.EventDelete, c.Type)
		assert.JSONEq(t, `{"id":"X"}`, string(c.Old))
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type flakyFeed struct {
	runs int
}

func (f *flakyFeed) Run(ctx context.Context, fn func(context.Context, remote.Change)) error {
	f.runs++
	if f.runs < 3 {
		return assert.AnError
	}
	fn(ctx, remote.Change{Table: "products", Type: remote.EventDelete, Old: json.RawMessage(`{"id":"X"}`)})
	<-ctx.Done()
	return ctx.Err()
}

func TestListenerReconnects(t *testing.T) {
	f := newFixture(t, product("X", "Soda", 10))
	feed := &flakyFeed{}
	l := NewListener(zerolog.Nop(), feed, f.h)
	l.MinBackoff = time.Millisecond
	l.MaxBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		_, ok := f.app.Find("X")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 3, feed.runs)
}
