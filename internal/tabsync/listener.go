// Package tabsync merges catalog records written by other tabs into the
// local store, ignoring the echoes of this tab's own writes.
package tabsync

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/slot"
)

// Guard selects how a notification is recognised as this tab's own write.
type Guard string

const (
	// GuardOrigin drops records tagged with this tab's origin.
	GuardOrigin Guard = "origin"
	// GuardValue drops records whose items equal the local snapshot.
	GuardValue Guard = "value"
)

// ParseGuard maps a config value to a Guard; empty means GuardOrigin.
func ParseGuard(s string) (Guard, error) {
	switch Guard(s) {
	case "", GuardOrigin:
		return GuardOrigin, nil
	case GuardValue:
		return GuardValue, nil
	}
	return "", fmt.Errorf("tabsync: unknown echo guard %q", s)
}

// Target receives merged snapshots, e.g. *catalog.Store.
type Target interface {
	ReplaceAll(catalog.Snapshot) error
	Snapshot() catalog.Snapshot
}

type Options struct {
	Key    string
	Origin string
	Guard  Guard
	Logger *zap.Logger
}

type Stats struct {
	Merged    int `json:"merged"`
	Echoes    int `json:"echoes"`
	Malformed int `json:"malformed"`
}

type Listener struct {
	slot   slot.Slot
	target Target
	key    string
	origin string
	guard  Guard
	logger *zap.Logger

	mu     sync.Mutex
	stats  Stats
	cancel func()
}

func NewListener(s slot.Slot, target Target, opts Options) *Listener {
	if opts.Key == "" {
		opts.Key = persist.DefaultKey
	}
	if opts.Guard == "" {
		opts.Guard = GuardOrigin
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		slot:   s,
		target: target,
		key:    opts.Key,
		origin: opts.Origin,
		guard:  opts.Guard,
		logger: logger.Named("tabsync"),
	}
}

// Start subscribes to slot changes. Calling it twice is a no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	l.cancel = l.slot.OnChange(l.handle)
}

// Stop unsubscribes. Notifications already being delivered may still land.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Listener) handle(c slot.Change) {
	if c.Key != l.key {
		return
	}
	if c.NewValue == nil {
		l.count(func(s *Stats) { s.Malformed++ })
		l.logger.Debug("ignoring removal of catalog record")
		return
	}
	rec, err := persist.Decode(c.NewValue)
	if err != nil {
		l.count(func(s *Stats) { s.Malformed++ })
		l.logger.Warn("ignoring malformed record", zap.Error(err))
		return
	}
	if l.isEcho(rec) {
		l.count(func(s *Stats) { s.Echoes++ })
		return
	}
	if err := l.target.ReplaceAll(rec.Items); err != nil {
		l.logger.Warn("merge failed", zap.String("origin", rec.Origin), zap.Error(err))
		return
	}
	l.count(func(s *Stats) { s.Merged++ })
	l.logger.Debug("merged foreign snapshot", zap.String("origin", rec.Origin), zap.Int("items", rec.Items.Len()))
}

func (l *Listener) isEcho(rec persist.Record) bool {
	switch l.guard {
	case GuardValue:
		return persist.SameItems(rec.Items, l.target.Snapshot())
	default:
		return rec.Origin != "" && rec.Origin == l.origin
	}
}

func (l *Listener) count(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}
