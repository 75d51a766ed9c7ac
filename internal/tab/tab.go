// Package tab wires one execution context: an Item Store hydrated from the
// shared slot, its cart projection, the persistence bridge writing it back,
// and the listener merging other tabs' writes.
package tab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/slot"
	"github.com/adityalohuni/tabcart/internal/tabsync"
)

var ErrNotLive = errors.New("tab: not live")

// State is the lifecycle position of a Tab.
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	// Key is the slot key; defaults to persist.DefaultKey.
	Key string
	// Origin identifies this tab in persisted records. Defaults to a new UUID.
	Origin       string
	PublishDelay time.Duration
	EchoGuard    tabsync.Guard
	// OnError receives failures of delayed commands.
	OnError func(error)
	Logger  *zap.Logger
}

// Stats aggregates the background counters of a live tab.
type Stats struct {
	Persist persist.Stats `json:"persist"`
	Sync    tabsync.Stats `json:"sync"`
}

type Tab struct {
	slot   slot.Slot
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	state    State
	store    *catalog.Store
	agg      *cart.Aggregator
	bridge   *persist.Bridge
	listener *tabsync.Listener
}

func New(s slot.Slot, opts Options) *Tab {
	if opts.Key == "" {
		opts.Key = persist.DefaultKey
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tab{
		slot:   s,
		opts:   opts,
		logger: logger.With(zap.String("tab", opts.Origin)),
	}
}

// ID returns the origin tag of this tab.
func (t *Tab) ID() string { return t.opts.Origin }

func (t *Tab) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Open hydrates the store from the slot and goes live. A slot failure is
// returned wrapped in slot.ErrUnavailable and leaves the tab uninitialized.
func (t *Tab) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateUninitialized {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("tab: open in state %s", state)
	}
	t.state = StateHydrating
	t.mu.Unlock()

	bridge := persist.NewBridge(t.slot, persist.Options{Key: t.opts.Key, Origin: t.opts.Origin, Logger: t.logger})
	initial, err := bridge.Hydrate(ctx)
	if err != nil {
		t.setState(StateUninitialized)
		return err
	}

	store := catalog.NewStore(catalog.Options{
		Initial:      initial,
		PublishDelay: t.opts.PublishDelay,
		OnError:      t.opts.OnError,
		Logger:       t.logger,
	})
	agg := cart.Attach(store)
	listener := tabsync.NewListener(t.slot, store, tabsync.Options{
		Key:    t.opts.Key,
		Origin: t.opts.Origin,
		Guard:  t.opts.EchoGuard,
		Logger: t.logger,
	})
	listener.Start()
	bridge.Attach(store)

	t.mu.Lock()
	t.store, t.agg, t.bridge, t.listener = store, agg, bridge, listener
	t.state = StateLive
	t.mu.Unlock()
	t.logger.Info("tab live", zap.Int("items", initial.Len()))
	return nil
}

// Close tears the tab down. It does not close the slot.
func (t *Tab) Close() {
	t.mu.Lock()
	if t.state != StateLive {
		t.state = StateClosed
		t.mu.Unlock()
		return
	}
	t.state = StateClosed
	store, agg, bridge, listener := t.store, t.agg, t.bridge, t.listener
	t.mu.Unlock()

	listener.Stop()
	store.Close()
	bridge.Detach()
	agg.Close()
	t.logger.Debug("tab closed")
}

func (t *Tab) live() (*catalog.Store, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateLive {
		return nil, ErrNotLive
	}
	return t.store, nil
}

func (t *Tab) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// AddItem inserts item, or overwrites the item with the same id.
func (t *Tab) AddItem(item catalog.Item) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.Upsert(item)
}

// UpdateItem overwrites an existing item; catalog.ErrNotFound otherwise.
func (t *Tab) UpdateItem(item catalog.Item) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.Update(item)
}

func (t *Tab) RemoveItem(id string) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.Remove(id)
}

func (t *Tab) AddToCart(id string) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.AddToCart(id)
}

func (t *Tab) SubtractFromCart(id string) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.SubtractFromCart(id)
}

func (t *Tab) ClearCart() error {
	s, err := t.live()
	if err != nil {
		return err
	}
	return s.ClearCart()
}

// Items returns the current snapshot; empty before Open.
func (t *Tab) Items() catalog.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.store == nil {
		return catalog.Snapshot{}
	}
	return t.store.Snapshot()
}

func (t *Tab) CartInfo() cart.Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.agg == nil {
		return cart.Info{}
	}
	return t.agg.Info()
}

func (t *Tab) TotalCartPrice() float64 { return t.CartInfo().TotalPrice }

func (t *Tab) Loading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store != nil && t.store.Loading()
}

func (t *Tab) SubscribeItems(fn func(catalog.Snapshot)) (func(), error) {
	s, err := t.live()
	if err != nil {
		return nil, err
	}
	return s.Subscribe(fn), nil
}

func (t *Tab) SubscribeCart(fn func(cart.Info)) (func(), error) {
	t.mu.RLock()
	agg, state := t.agg, t.state
	t.mu.RUnlock()
	if state != StateLive {
		return nil, ErrNotLive
	}
	return agg.Subscribe(fn), nil
}

func (t *Tab) SubscribeLoading(fn func(bool)) (func(), error) {
	s, err := t.live()
	if err != nil {
		return nil, err
	}
	return s.SubscribeLoading(fn), nil
}

func (t *Tab) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bridge == nil {
		return Stats{}
	}
	return Stats{Persist: t.bridge.Stats(), Sync: t.listener.Stats()}
}
