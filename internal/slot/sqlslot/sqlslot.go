// Package sqlslot implements slot.Slot on a SQLite file shared by several
// processes. Each Slot holds one connection and polls PRAGMA data_version,
// which only moves when another connection commits, so a process is never
// notified about its own writes.
package sqlslot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/adityalohuni/tabcart/internal/slot"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

type Options struct {
	// PollInterval is how often data_version is checked. Default: 250ms.
	PollInterval time.Duration
	// BusyTimeout is applied as PRAGMA busy_timeout. Default: 10s.
	BusyTimeout time.Duration
	Logger      *zap.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Slot is safe for concurrent use.
type Slot struct {
	*slot.Notifier
	db     *sql.DB
	path   string
	opts   Options
	logger *zap.Logger

	// mu covers writes and change scans so that a scan never observes this
	// connection's own write before the cache knows about it.
	mu      sync.Mutex
	cache   map[string][]byte
	version int64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Open opens (creating if needed) the database at path and starts polling.
func Open(path string, opts Options) (*Slot, error) {
	opts.defaults()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, slot.Unavailable("open", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, slot.Unavailable("open", path, err)
	}
	// data_version is per connection; pin the pool to a single one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
		schema,
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, slot.Unavailable("open", path, fmt.Errorf("%s: %w", stmt, err))
		}
	}

	logger := opts.Logger.Named("slot.sqlite")
	s := &Slot{
		Notifier: slot.NewNotifier(logger),
		db:       db,
		path:     path,
		opts:     opts,
		logger:   logger,
		cache:    make(map[string][]byte),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	ctx := context.Background()
	if err := s.prime(ctx); err != nil {
		s.Notifier.Close()
		_ = db.Close()
		return nil, slot.Unavailable("open", path, err)
	}
	go s.poll()
	return s, nil
}

func (s *Slot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, slot.Unavailable("get", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (s *Slot) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return slot.Unavailable("set", key, err)
	}
	s.cache[key] = append([]byte(nil), value...)
	return nil
}

// Close stops polling, closes the notifier and the database handle.
func (s *Slot) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		s.Notifier.Close()
		err = s.db.Close()
	})
	return err
}

func (s *Slot) prime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.dataVersion(ctx)
	if err != nil {
		return err
	}
	rows, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	s.version = v
	s.cache = rows
	return nil
}

func (s *Slot) poll() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			changes, err := s.scan(context.Background())
			if err != nil {
				s.logger.Warn("change scan failed", zap.String("path", s.path), zap.Error(err))
				continue
			}
			for _, c := range changes {
				s.Emit(c)
			}
		}
	}
}

// scan compares the table with the cache when data_version moved and
// returns one Change per key whose value differs.
func (s *Slot) scan(ctx context.Context) ([]slot.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.dataVersion(ctx)
	if err != nil {
		return nil, err
	}
	if v == s.version {
		return nil, nil
	}
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	s.version = v

	var changes []slot.Change
	for key, val := range rows {
		old, had := s.cache[key]
		if had && slot.Same(old, val) {
			continue
		}
		c := slot.Change{Key: key, NewValue: val}
		if had {
			c.OldValue = old
		}
		changes = append(changes, c)
	}
	for key, old := range s.cache {
		if _, ok := rows[key]; !ok {
			changes = append(changes, slot.Change{Key: key, OldValue: old})
		}
	}
	s.cache = rows
	return changes, nil
}

func (s *Slot) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

func (s *Slot) readAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if value == nil {
			value = []byte{}
		}
		out[key] = value
	}
	return out, rows.Err()
}
