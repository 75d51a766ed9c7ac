package tab

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/slot"
	"github.com/adityalohuni/tabcart/internal/tabsync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTab(t *testing.T, s slot.Slot, opts Options) *Tab {
	t.Helper()
	tb := New(s, opts)
	require.NoError(t, tb.Open(context.Background()))
	t.Cleanup(tb.Close)
	return tb
}

func newHub(t *testing.T) *slot.Hub {
	t.Helper()
	hub := slot.NewHub(slot.HubOptions{})
	t.Cleanup(hub.Close)
	return hub
}

// spySlot counts notifications delivered to its subscribers.
type spySlot struct {
	*slot.View
	mu       sync.Mutex
	received int
}

func (s *spySlot) OnChange(fn func(slot.Change)) func() {
	return s.View.OnChange(func(c slot.Change) {
		s.mu.Lock()
		s.received++
		s.mu.Unlock()
		fn(c)
	})
}

func TestStateMachine(t *testing.T) {
	hub := newHub(t)
	tb := New(hub.Open(), Options{Origin: "x"})
	assert.Equal(t, StateUninitialized, tb.State())
	assert.ErrorIs(t, tb.AddItem(catalog.Item{ID: "1"}), ErrNotLive)
	_, err := tb.SubscribeItems(func(catalog.Snapshot) {})
	assert.ErrorIs(t, err, ErrNotLive)

	require.NoError(t, tb.Open(context.Background()))
	assert.Equal(t, StateLive, tb.State())
	assert.Equal(t, "x", tb.ID())
	assert.Error(t, tb.Open(context.Background()))

	tb.Close()
	assert.Equal(t, StateClosed, tb.State())
	assert.ErrorIs(t, tb.AddToCart("1"), ErrNotLive)
	tb.Close()
	assert.Equal(t, "closed", tb.State().String())
}

func TestDefaultOriginIsUnique(t *testing.T) {
	hub := newHub(t)
	a := New(hub.Open(), Options{})
	b := New(hub.Open(), Options{})
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestAddToCartThreeTimesUpdatesTotals(t *testing.T) {
	tb := openTab(t, newHub(t).Open(), Options{})
	require.NoError(t, tb.AddItem(catalog.Item{ID: "1", Name: "Latte", Price: 2.0, AmountInStock: 5}))
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.AddToCart("1"))
	}
	it, ok := tb.Items().Get("1")
	require.True(t, ok)
	assert.Equal(t, 2, it.AmountInStock)
	assert.Equal(t, 3, it.AmountInCart)
	assert.Equal(t, cart.Info{CartSize: 1, TotalPrice: 6.0}, tb.CartInfo())
	assert.Equal(t, 6.0, tb.TotalCartPrice())
}

func TestForeignWriteIsMergedWithoutSelfEcho(t *testing.T) {
	hub := newHub(t)
	xs := &spySlot{View: hub.Open()}
	x := openTab(t, xs, Options{Origin: "x"})
	y := openTab(t, hub.Open(), Options{Origin: "y"})

	var ySnaps []catalog.Snapshot
	var mu sync.Mutex
	cancel, err := y.SubscribeItems(func(s catalog.Snapshot) {
		mu.Lock()
		ySnaps = append(ySnaps, s)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, x.AddItem(catalog.Item{ID: "1", Name: "Tea", Price: 1, AmountInStock: 2}))

	require.Eventually(t, func() bool { return y.Items().Equal(x.Items()) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, y.Stats().Sync.Merged)

	// Y's merge publishes, but the bridge sees identical items and stays quiet,
	// so X is never notified of anything.
	time.Sleep(50 * time.Millisecond)
	xs.mu.Lock()
	assert.Equal(t, 0, xs.received)
	xs.mu.Unlock()
	assert.Equal(t, 0, x.Stats().Sync.Merged)
	assert.Equal(t, 2, y.Stats().Persist.Skipped, "open and merge both find the slot up to date")
}

func TestNonFinitePriceNeverReachesStore(t *testing.T) {
	tb := openTab(t, newHub(t).Open(), Options{})
	assert.ErrorIs(t, tb.AddItem(catalog.Item{ID: "x", Price: math.NaN(), AmountInStock: 1}), catalog.ErrInvalidItem)
	assert.ErrorIs(t, tb.AddItem(catalog.Item{ID: "x", Price: math.Inf(1), AmountInStock: 1}), catalog.ErrInvalidItem)
	assert.Equal(t, 0, tb.Items().Len())
	assert.Equal(t, 0, tb.Stats().Persist.Failures)

	require.NoError(t, tb.AddItem(catalog.Item{ID: "x", Price: 1, AmountInStock: 1}))
	require.NoError(t, tb.AddToCart("x"))
	assert.Equal(t, cart.Info{CartSize: 1, TotalPrice: 1}, tb.CartInfo())
	assert.Equal(t, 0, tb.Stats().Persist.Failures)
}

func TestCartOperationsPropagateBothWays(t *testing.T) {
	hub := newHub(t)
	x := openTab(t, hub.Open(), Options{Origin: "x"})
	y := openTab(t, hub.Open(), Options{Origin: "y"})

	require.NoError(t, x.AddItem(catalog.Item{ID: "1", Price: 3, AmountInStock: 4}))
	require.Eventually(t, func() bool { return y.Items().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, y.AddToCart("1"))
	require.NoError(t, y.AddToCart("1"))
	require.Eventually(t, func() bool { return x.CartInfo().TotalPrice == 6 }, time.Second, 5*time.Millisecond)

	require.NoError(t, x.ClearCart())
	require.Eventually(t, func() bool { return y.CartInfo() == cart.Info{} }, time.Second, 5*time.Millisecond)
	it, _ := y.Items().Get("1")
	assert.Equal(t, 4, it.AmountInStock)
}

func TestNewTabHydratesFromSlot(t *testing.T) {
	hub := newHub(t)
	x := openTab(t, hub.Open(), Options{})
	require.NoError(t, x.AddItem(catalog.Item{ID: "1", AmountInStock: 1}))
	require.NoError(t, x.AddItem(catalog.Item{ID: "2", AmountInStock: 1}))

	late := openTab(t, hub.Open(), Options{})
	assert.True(t, late.Items().Equal(x.Items()))
}

func TestValueEchoGuard(t *testing.T) {
	hub := newHub(t)
	x := openTab(t, hub.Open(), Options{EchoGuard: tabsync.GuardValue})
	y := openTab(t, hub.Open(), Options{EchoGuard: tabsync.GuardValue})

	require.NoError(t, x.AddItem(catalog.Item{ID: "1", AmountInStock: 1}))
	require.Eventually(t, func() bool { return y.Items().Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, x.Stats().Sync.Merged)
}

func TestInsufficientStockLeavesSlotUntouched(t *testing.T) {
	hub := newHub(t)
	v := hub.Open()
	tb := openTab(t, v, Options{})
	require.NoError(t, tb.AddItem(catalog.Item{ID: "1"}))
	writes := tb.Stats().Persist.Writes

	err := tb.AddToCart("1")
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, writes, tb.Stats().Persist.Writes)
}

func TestPublishDelay(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	tb := openTab(t, newHub(t).Open(), Options{
		PublishDelay: 20 * time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, tb.AddItem(catalog.Item{ID: "1"}))
	assert.True(t, tb.Loading())
	assert.Equal(t, 0, tb.Items().Len())

	require.Eventually(t, func() bool { return !tb.Loading() && tb.Items().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tb.AddToCart("1"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ErrorIs(t, errs[0], catalog.ErrInsufficientStock)
	mu.Unlock()
}

type failingSlot struct{}

func (failingSlot) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, slot.Unavailable("get", persist.DefaultKey, errors.New("access denied"))
}

func (failingSlot) Set(context.Context, string, []byte) error {
	return slot.Unavailable("set", persist.DefaultKey, errors.New("access denied"))
}

func (failingSlot) OnChange(func(slot.Change)) func() { return func() {} }

func TestOpenSurfacesUnavailableSlot(t *testing.T) {
	tb := New(failingSlot{}, Options{})
	err := tb.Open(context.Background())
	assert.ErrorIs(t, err, slot.ErrUnavailable)
	assert.Equal(t, StateUninitialized, tb.State())
}
