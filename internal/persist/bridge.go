// Package persist keeps a tab's catalog mirrored into the shared slot and
// hydrates a new tab from it.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/slot"
)

type Options struct {
	// Key defaults to DefaultKey.
	Key string
	// Origin tags every record this bridge writes.
	Origin string
	// WriteTimeout bounds each background write. Default: 5s.
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Stats counts what the bridge did with the snapshots it was handed.
type Stats struct {
	Writes   int `json:"writes"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}

// Source publishes snapshots, e.g. *catalog.Store.
type Source interface {
	Subscribe(fn func(catalog.Snapshot)) func()
}

type Bridge struct {
	slot    slot.Slot
	key     string
	origin  string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	stats  Stats
	cancel func()
}

func NewBridge(s slot.Slot, opts Options) *Bridge {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		slot:    s,
		key:     opts.Key,
		origin:  opts.Origin,
		timeout: opts.WriteTimeout,
		logger:  logger.Named("persist"),
	}
}

// Hydrate reads the slot once. A missing or malformed record yields an
// empty snapshot; only a slot failure is returned.
func (b *Bridge) Hydrate(ctx context.Context) (catalog.Snapshot, error) {
	data, ok, err := b.slot.Get(ctx, b.key)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("persist: hydrate: %w", err)
	}
	if !ok {
		return catalog.Snapshot{}, nil
	}
	rec, err := Decode(data)
	if err != nil {
		b.logger.Warn("ignoring stored record", zap.String("key", b.key), zap.Error(err))
		return catalog.Snapshot{}, nil
	}
	return rec.Items, nil
}

// Write stores snap unless the slot already holds the same items. It
// reports whether a write happened.
func (b *Bridge) Write(ctx context.Context, snap catalog.Snapshot) (bool, error) {
	current, ok, err := b.slot.Get(ctx, b.key)
	if err != nil {
		b.count(func(s *Stats) { s.Failures++ })
		return false, err
	}
	if ok {
		if rec, err := Decode(current); err == nil && SameItems(rec.Items, snap) {
			b.count(func(s *Stats) { s.Skipped++ })
			return false, nil
		}
	}
	data, err := Encode(Record{Origin: b.origin, Items: snap})
	if err != nil {
		b.count(func(s *Stats) { s.Failures++ })
		return false, err
	}
	if err := b.slot.Set(ctx, b.key, data); err != nil {
		b.count(func(s *Stats) { s.Failures++ })
		return false, err
	}
	b.count(func(s *Stats) { s.Writes++ })
	return true, nil
}

// Attach writes every snapshot src publishes, starting with the current
// one. Failures are logged, never returned.
func (b *Bridge) Attach(src Source) {
	b.Detach()
	cancel := src.Subscribe(func(snap catalog.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if _, err := b.Write(ctx, snap); err != nil {
			level := zap.WarnLevel
			if errors.Is(err, slot.ErrClosed) {
				level = zap.DebugLevel
			}
			b.logger.Log(level, "snapshot write failed", zap.String("key", b.key), zap.Error(err))
		}
	})
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

func (b *Bridge) Detach() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Bridge) count(fn func(*Stats)) {
	b.mu.Lock()
	fn(&b.stats)
	b.mu.Unlock()
}
