// Package catalog owns the authoritative in-memory catalog of one tab: the
// ordered item list, its cart counters, and the mutation rules that keep
// stock and cart amounts consistent.
package catalog

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/observe"
)

// Options configures a Store.
type Options struct {
	// Initial is the snapshot the store starts from, usually the hydrated one.
	Initial Snapshot
	// PublishDelay postpones every command by a fixed duration from the moment
	// it is issued. Zero applies commands synchronously.
	PublishDelay time.Duration
	// OnError receives rule violations of delayed commands, which can no
	// longer be returned to the caller. Defaults to a warn log.
	OnError func(error)
	Logger  *zap.Logger
}

// mutation computes the next snapshot. changed=false means the command was a
// no-op and nothing is published.
type mutation func(current Snapshot) (next Snapshot, changed bool, err error)

type pendingOp struct{}

// Store serializes mutations and publishes each resulting snapshot to its
// subscribers synchronously, before the mutating call returns. Subscriber
// callbacks must not call back into Store mutations.
type Store struct {
	mu      sync.Mutex
	items   *observe.Subject[Snapshot]
	loading *observe.Subject[bool]

	delay   time.Duration
	onError func(error)
	logger  *zap.Logger

	pendingMu sync.Mutex
	pending   map[*pendingOp]*time.Timer
	closed    bool
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		items:   observe.NewSubject(opts.Initial),
		loading: observe.NewSubject(false),
		delay:   opts.PublishDelay,
		onError: opts.OnError,
		logger:  logger.Named("catalog"),
		pending: make(map[*pendingOp]*time.Timer),
	}
	if s.delay < 0 {
		s.delay = 0
	}
	return s
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() Snapshot { return s.items.Value() }

func (s *Store) Get(id string) (Item, bool) { return s.items.Value().Get(id) }

// Subscribe registers fn for every published snapshot, starting with the
// current one.
func (s *Store) Subscribe(fn func(Snapshot)) func() { return s.items.Subscribe(fn) }

// Loading reports whether delayed commands are still waiting to be applied.
func (s *Store) Loading() bool { return s.loading.Value() }

func (s *Store) SubscribeLoading(fn func(bool)) func() { return s.loading.Subscribe(fn) }

// Upsert replaces the item with the same id, or appends it. It always
// publishes, even when the item is unchanged.
func (s *Store) Upsert(item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return s.submit("upsert", func(cur Snapshot) (Snapshot, bool, error) {
		idx := cur.index(item.ID)
		return cur.with(func(items []Item) []Item {
			if idx >= 0 {
				items[idx] = item
				return items
			}
			return append(items, item)
		}), true, nil
	})
}

// Update replaces an existing item and fails with ErrNotFound otherwise.
func (s *Store) Update(item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return s.submit("update", func(cur Snapshot) (Snapshot, bool, error) {
		idx := cur.index(item.ID)
		if idx < 0 {
			return cur, false, notFound(item.ID)
		}
		return cur.with(func(items []Item) []Item {
			items[idx] = item
			return items
		}), true, nil
	})
}

// Remove deletes the item with the given id. A missing id is a silent no-op.
func (s *Store) Remove(id string) error {
	return s.submit("remove", func(cur Snapshot) (Snapshot, bool, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, false, nil
		}
		return cur.with(func(items []Item) []Item {
			return append(items[:idx], items[idx+1:]...)
		}), true, nil
	})
}

// AddToCart moves one unit of the item from stock to cart. It fails with an
// *InsufficientStockError when the item is out of stock.
func (s *Store) AddToCart(id string) error {
	return s.submit("add_to_cart", func(cur Snapshot) (Snapshot, bool, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, false, notFound(id)
		}
		if cur.items[idx].AmountInStock <= 0 {
			return cur, false, &InsufficientStockError{ID: id}
		}
		return cur.with(func(items []Item) []Item {
			items[idx].AmountInStock--
			items[idx].AmountInCart++
			return items
		}), true, nil
	})
}

// SubtractFromCart moves one unit back from cart to stock. An empty cart
// entry is a no-op.
func (s *Store) SubtractFromCart(id string) error {
	return s.submit("subtract_from_cart", func(cur Snapshot) (Snapshot, bool, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, false, notFound(id)
		}
		if cur.items[idx].AmountInCart <= 0 {
			return cur, false, nil
		}
		return cur.with(func(items []Item) []Item {
			items[idx].AmountInStock++
			items[idx].AmountInCart--
			return items
		}), true, nil
	})
}

// ClearCart returns every cart unit to stock and publishes once.
func (s *Store) ClearCart() error {
	return s.submit("clear_cart", func(cur Snapshot) (Snapshot, bool, error) {
		return cur.with(func(items []Item) []Item {
			for i := range items {
				items[i].AmountInStock += items[i].AmountInCart
				items[i].AmountInCart = 0
			}
			return items
		}), true, nil
	})
}

// ReplaceAll installs a snapshot that originated in another tab. It skips
// the business rules and the publish delay.
func (s *Store) ReplaceAll(next Snapshot) error {
	return s.runOpen("replace_all", func(Snapshot) (Snapshot, bool, error) {
		return next, true, nil
	})
}

// Close cancels delayed commands that have not run yet.
func (s *Store) Close() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	hadPending := len(s.pending) > 0
	for op, timer := range s.pending {
		timer.Stop()
		delete(s.pending, op)
	}
	if hadPending {
		s.loading.Publish(false)
	}
}

func (s *Store) submit(op string, m mutation) error {
	if s.delay <= 0 {
		return s.runOpen(op, m)
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	token := &pendingOp{}
	s.pending[token] = time.AfterFunc(s.delay, func() { s.fire(token, op, m) })
	if len(s.pending) == 1 {
		s.loading.Publish(true)
	}
	return nil
}

// fire applies a delayed command unless Close cancelled it. The check and
// the mutation share pendingMu so nothing lands after Close returns.
func (s *Store) fire(token *pendingOp, op string, m mutation) {
	s.pendingMu.Lock()
	if _, ok := s.pending[token]; !ok || s.closed {
		s.pendingMu.Unlock()
		return
	}
	err := s.run(op, m)
	delete(s.pending, token)
	if len(s.pending) == 0 {
		s.loading.Publish(false)
	}
	s.pendingMu.Unlock()

	if err != nil {
		s.report(op, err)
	}
}

// runOpen applies m immediately if the store is still open.
func (s *Store) runOpen(op string, m mutation) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.run(op, m)
}

func (s *Store) run(op string, m mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed, err := m(s.items.Value())
	if err != nil || !changed {
		return err
	}
	s.items.Publish(next)
	s.logger.Debug("published snapshot", zap.String("op", op), zap.Int("items", next.Len()))
	return nil
}

func (s *Store) report(op string, err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.logger.Warn("delayed command failed", zap.String("op", op), zap.Error(err))
}
