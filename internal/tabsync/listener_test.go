package tabsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/slot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func record(t *testing.T, origin string, items ...catalog.Item) []byte {
	t.Helper()
	data, err := persist.Encode(persist.Record{Origin: origin, Items: catalog.NewSnapshot(items)})
	require.NoError(t, err)
	return data
}

type fixture struct {
	hub    *slot.Hub
	local  *slot.View
	remote *slot.View
	store  *catalog.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := slot.NewHub(slot.HubOptions{})
	t.Cleanup(hub.Close)
	return &fixture{
		hub:    hub,
		local:  hub.Open(),
		remote: hub.Open(),
		store:  catalog.NewStore(catalog.Options{}),
	}
}

func TestForeignRecordIsMerged(t *testing.T) {
	f := newFixture(t)
	l := NewListener(f.local, f.store, Options{Origin: "local"})
	l.Start()
	defer l.Stop()

	item := catalog.Item{ID: "1", Name: "Tea", Price: 1, AmountInStock: 3}
	require.NoError(t, f.remote.Set(context.Background(), persist.DefaultKey, record(t, "remote", item)))

	require.Eventually(t, func() bool { return l.Stats().Merged == 1 }, time.Second, 5*time.Millisecond)
	got, ok := f.store.Get("1")
	require.True(t, ok)
	assert.Equal(t, item, got)
}

func TestOriginGuardDropsOwnRecord(t *testing.T) {
	f := newFixture(t)
	l := NewListener(f.local, f.store, Options{Origin: "local"})
	l.Start()
	defer l.Stop()

	// The same origin arriving through another view still counts as an echo.
	require.NoError(t, f.remote.Set(context.Background(), persist.DefaultKey,
		record(t, "local", catalog.Item{ID: "1", AmountInStock: 1})))

	require.Eventually(t, func() bool { return l.Stats().Echoes == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.store.Snapshot().Len())
}

func TestValueGuard(t *testing.T) {
	f := newFixture(t)
	item := catalog.Item{ID: "1", AmountInStock: 1}
	require.NoError(t, f.store.Upsert(item))
	l := NewListener(f.local, f.store, Options{Origin: "local", Guard: GuardValue})
	l.Start()
	defer l.Stop()

	ctx := context.Background()
	require.NoError(t, f.remote.Set(ctx, persist.DefaultKey, record(t, "other", item)))
	require.Eventually(t, func() bool { return l.Stats().Echoes == 1 }, time.Second, 5*time.Millisecond)

	changed := item
	changed.AmountInStock = 9
	require.NoError(t, f.remote.Set(ctx, persist.DefaultKey, record(t, "other", changed)))
	require.Eventually(t, func() bool { return l.Stats().Merged == 1 }, time.Second, 5*time.Millisecond)
	got, _ := f.store.Get("1")
	assert.Equal(t, 9, got.AmountInStock)
}

func TestMalformedAndUnrelatedChangesAreIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Upsert(catalog.Item{ID: "keep"}))
	l := NewListener(f.local, f.store, Options{Origin: "local"})
	l.Start()
	defer l.Stop()

	ctx := context.Background()
	require.NoError(t, f.remote.Set(ctx, "other-key", record(t, "remote")))
	require.NoError(t, f.remote.Set(ctx, persist.DefaultKey, []byte(`{"items": 42}`)))
	require.NoError(t, f.remote.Set(ctx, persist.DefaultKey, []byte(`not json`)))

	require.Eventually(t, func() bool { return l.Stats().Malformed == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Stats{Malformed: 2}, l.Stats())
	_, ok := f.store.Get("keep")
	assert.True(t, ok)
}

func TestRemovalNotificationIsIgnored(t *testing.T) {
	f := newFixture(t)
	l := NewListener(f.local, f.store, Options{Origin: "local"})
	l.handle(slot.Change{Key: persist.DefaultKey, OldValue: []byte(`{"items":[]}`)})
	assert.Equal(t, 1, l.Stats().Malformed)
}

func TestStopEndsDelivery(t *testing.T) {
	f := newFixture(t)
	l := NewListener(f.local, f.store, Options{Origin: "local"})
	l.Start()
	l.Start()
	l.Stop()

	require.NoError(t, f.remote.Set(context.Background(), persist.DefaultKey,
		record(t, "remote", catalog.Item{ID: "1"})))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Stats{}, l.Stats())
}

func TestParseGuard(t *testing.T) {
	g, err := ParseGuard("")
	require.NoError(t, err)
	assert.Equal(t, GuardOrigin, g)
	g, err = ParseGuard("value")
	require.NoError(t, err)
	assert.Equal(t, GuardValue, g)
	_, err = ParseGuard("vibes")
	assert.Error(t, err)
}
