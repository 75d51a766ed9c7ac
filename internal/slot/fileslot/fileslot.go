// Package fileslot implements slot.Slot as a directory of files, one per
// key, watched with fsnotify. Several processes may open the same
// directory; writes are atomic renames so readers never see a torn value.
package fileslot

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/slot"
)

const (
	suffix    = ".slot"
	tmpPrefix = ".tmp-"
)

type Options struct {
	Logger *zap.Logger
}

type Slot struct {
	*slot.Notifier
	dir     string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	// mu guards cache, the last value this process wrote or observed per key.
	mu    sync.Mutex
	cache map[string][]byte

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// Open creates dir if needed, snapshots its current contents and starts
// watching it.
func Open(dir string, opts Options) (*Slot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("slot.file")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, slot.Unavailable("open", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, slot.Unavailable("open", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, slot.Unavailable("open", dir, err)
	}

	s := &Slot{
		Notifier: slot.NewNotifier(logger),
		dir:      dir,
		watcher:  watcher,
		logger:   logger,
		cache:    make(map[string][]byte),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := s.prime(); err != nil {
		_ = watcher.Close()
		s.Notifier.Close()
		return nil, slot.Unavailable("open", dir, err)
	}
	go s.run()
	logger.Debug("watching slot directory", zap.String("dir", dir))
	return s, nil
}

func (s *Slot) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, slot.Unavailable("get", key, err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

func (s *Slot) Set(_ context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return slot.Unavailable("set", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return slot.Unavailable("set", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return slot.Unavailable("set", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return slot.Unavailable("set", key, err)
	}
	s.cache[key] = append([]byte{}, value...)
	return nil
}

// Close stops the watcher and the notifier.
func (s *Slot) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		err = s.watcher.Close()
		s.Notifier.Close()
	})
	return err
}

func (s *Slot) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+suffix)
}

func keyOf(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, tmpPrefix) || !strings.HasSuffix(base, suffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, suffix))
	if err != nil {
		return "", false
	}
	return key, true
}

func (s *Slot) prime() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key, ok := keyOf(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		s.cache[key] = b
	}
	return nil
}

func (s *Slot) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watch error", zap.String("dir", s.dir), zap.Error(err))
		}
	}
}

func (s *Slot) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	key, ok := keyOf(event.Name)
	if !ok {
		return
	}

	s.mu.Lock()
	old, had := s.cache[key]
	b, err := os.ReadFile(event.Name)
	var c slot.Change
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !had {
			s.mu.Unlock()
			return
		}
		delete(s.cache, key)
		c = slot.Change{Key: key, OldValue: old}
	case err != nil:
		s.mu.Unlock()
		s.logger.Warn("read changed slot file", zap.String("key", key), zap.Error(err))
		return
	default:
		if b == nil {
			b = []byte{}
		}
		if had && slot.Same(old, b) {
			s.mu.Unlock()
			return
		}
		s.cache[key] = b
		c = slot.Change{Key: key, NewValue: b}
		if had {
			c.OldValue = old
		}
	}
	s.mu.Unlock()
	s.Emit(c)
}
