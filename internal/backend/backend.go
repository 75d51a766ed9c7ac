// Package backend opens the slot implementation named in the settings.
package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/slot"
	"github.com/adityalohuni/tabcart/internal/slot/fileslot"
	"github.com/adityalohuni/tabcart/internal/slot/sqlslot"
	"github.com/adityalohuni/tabcart/internal/slot/wsslot"
)

// Slot is an opened backend that must be closed when done.
type Slot interface {
	slot.Slot
	Close() error
}

type Options struct {
	// Backend is one of config.Backends.
	Backend      string
	Path         string
	HubURL       string
	Token        string
	Name         string
	PollInterval time.Duration
	Logger       *zap.Logger
}

// ForTab returns the options a tab started from s uses.
func ForTab(s config.Settings, name string) Options {
	return Options{
		Backend:      s.SlotBackend,
		Path:         s.SlotPath,
		HubURL:       s.HubURL,
		Token:        s.HubToken,
		Name:         name,
		PollInterval: s.PollInterval,
	}
}

// ForDaemon returns the options of the hub daemon's own backend.
func ForDaemon(s config.Settings) Options {
	return Options{
		Backend:      s.DaemonBackend,
		Path:         s.DaemonPath,
		PollInterval: s.PollInterval,
	}
}

func Open(ctx context.Context, opts Options) (Slot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Backend {
	case "memory":
		hub := slot.NewHub(slot.HubOptions{Logger: logger})
		return &memorySlot{View: hub.Open(), hub: hub}, nil
	case "sqlite":
		s, err := sqlslot.Open(opts.Path, sqlslot.Options{PollInterval: opts.PollInterval, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "file":
		s, err := fileslot.Open(opts.Path, fileslot.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "hub":
		s, err := wsslot.Dial(ctx, opts.HubURL, wsslot.Options{Token: opts.Token, Name: opts.Name, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("backend: unknown slot backend %q", opts.Backend)
}

// memorySlot is a process-private hub with a single view, mostly useful
// for the daemon and for trying things out.
type memorySlot struct {
	*slot.View
	hub *slot.Hub
}

func (m *memorySlot) Close() error {
	m.hub.Close()
	return nil
}
