package slot

import (
	"sync"

	"go.uber.org/zap"
)

// Notifier fans Change events out to registered handlers on its own
// goroutine, in the order they were emitted. Slot implementations embed it
// to provide OnChange.
type Notifier struct {
	mu       sync.Mutex
	handlers map[uint64]func(Change)
	order    []uint64
	nextID   uint64
	queue    []Change
	closed   bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once

	logger *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		handlers: make(map[uint64]func(Change)),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go n.loop()
	return n
}

// OnChange registers fn; the returned func unregisters it.
func (n *Notifier) OnChange(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.handlers[id] = fn
	n.order = append(n.order, id)
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.handlers[id]; !ok {
			return
		}
		delete(n.handlers, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i:i], n.order[i+1:]...)
				break
			}
		}
	}
}

// Emit queues c for delivery. It never blocks on handlers.
func (n *Notifier) Emit(c Change) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, c)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery and waits for the dispatch goroutine to exit.
// It must not be called from inside a handler.
func (n *Notifier) Close() {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.queue = nil
		n.mu.Unlock()
		close(n.quit)
		<-n.done
	})
}

func (n *Notifier) loop() {
	defer close(n.done)
	for {
		select {
		case <-n.quit:
			return
		case <-n.wake:
		}
		for {
			n.mu.Lock()
			if n.closed || len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			c := n.queue[0]
			n.queue = n.queue[1:]
			fns := make([]func(Change), 0, len(n.order))
			for _, id := range n.order {
				fns = append(fns, n.handlers[id])
			}
			n.mu.Unlock()

			for _, fn := range fns {
				n.dispatch(fn, c)
			}
		}
	}
}

func (n *Notifier) dispatch(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("change handler panicked", zap.String("key", c.Key), zap.Any("panic", r))
		}
	}()
	fn(c)
}
