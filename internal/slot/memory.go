package slot

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub is an in-process shared store. Each tab opens its own View; a write
// through one View notifies every other open View, never the writer,
// mirroring how a browser delivers storage events to the other tabs of a
// profile.
type Hub struct {
	mu     sync.Mutex
	values map[string][]byte
	views  map[*View]struct{}
	logger *zap.Logger
}

type HubOptions struct {
	Logger *zap.Logger
}

func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		values: make(map[string][]byte),
		views:  make(map[*View]struct{}),
		logger: logger.Named("slot.memory"),
	}
}

// Open returns a new View bound to the hub.
func (h *Hub) Open() *View {
	v := &View{hub: h, Notifier: NewNotifier(h.logger)}
	h.mu.Lock()
	h.views[v] = struct{}{}
	h.mu.Unlock()
	return v
}

// Views reports how many views are open.
func (h *Hub) Views() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Close closes every open view.
func (h *Hub) Close() {
	h.mu.Lock()
	views := make([]*View, 0, len(h.views))
	for v := range h.views {
		views = append(views, v)
	}
	h.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}

func (h *Hub) get(key string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[key]
	return clone(v), ok
}

func (h *Hub) set(from *View, key string, value []byte) {
	h.mu.Lock()
	old, existed := h.values[key]
	if existed && Same(old, value) {
		h.mu.Unlock()
		return
	}
	h.values[key] = clone(value)
	// Emit under mu so every view queues changes in commit order.
	for v := range h.views {
		if v != from {
			v.Emit(Change{Key: key, OldValue: clone(old), NewValue: clone(value)})
		}
	}
	h.mu.Unlock()
}

func (h *Hub) detach(v *View) {
	h.mu.Lock()
	delete(h.views, v)
	h.mu.Unlock()
}

// View is one tab's handle on a Hub. It implements Slot.
type View struct {
	*Notifier
	hub *Hub

	mu     sync.Mutex
	closed bool
}

func (v *View) Get(_ context.Context, key string) ([]byte, bool, error) {
	if v.isClosed() {
		return nil, false, ErrClosed
	}
	val, ok := v.hub.get(key)
	return val, ok, nil
}

func (v *View) Set(_ context.Context, key string, value []byte) error {
	if v.isClosed() {
		return ErrClosed
	}
	v.hub.set(v, key, value)
	return nil
}

// Close detaches the view from its hub and stops its notifications.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()
	v.hub.detach(v)
	v.Notifier.Close()
	return nil
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
