package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TabInfo describes one tab connected to the hub. Origin is the tab id
// carried by the last record the connection wrote, which is how a stored
// record is traced back to a live connection.
type TabInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Transport   string    `json:"transport,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Writes      int       `json:"writes"`
	Bytes       int       `json:"bytes_written"`
	LastKey     string    `json:"last_key,omitempty"`
	LastWriteAt time.Time `json:"last_write_at,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Write is one accepted slot write.
type Write struct {
	Key    string
	Origin string
	Size   int
}

type Registry struct {
	mu   sync.RWMutex
	tabs map[string]*TabInfo
}

func NewRegistry() *Registry {
	return &Registry{tabs: make(map[string]*TabInfo)}
}

func (r *Registry) Register(id string, info TabInfo) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	info.ID = id
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = now
	}
	info.LastSeen = now
	r.tabs[id] = &info
	return id
}

// Seen refreshes LastSeen. Unknown ids are ignored.
func (r *Registry) Seen(id string) {
	r.update(id, func(*TabInfo) {})
}

// Rename sets the display name a tab announced in its hello.
func (r *Registry) Rename(id, name string) {
	if name == "" {
		return
	}
	r.update(id, func(t *TabInfo) { t.Name = name })
}

// RecordWrite counts w against the tab. An empty origin keeps the last
// known one, so raw writes do not hide which tab the connection is.
func (r *Registry) RecordWrite(id string, w Write) {
	r.update(id, func(t *TabInfo) {
		t.Writes++
		t.Bytes += w.Size
		t.LastKey = w.Key
		t.LastWriteAt = t.LastSeen
		if w.Origin != "" {
			t.Origin = w.Origin
		}
	})
}

func (r *Registry) update(id string, fn func(*TabInfo)) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[id]
	if !ok {
		return
	}
	t.LastSeen = time.Now()
	fn(t)
}

// ByOrigin finds the connection whose last write carried origin.
func (r *Registry) ByOrigin(origin string) (TabInfo, bool) {
	if origin == "" {
		return TabInfo{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tabs {
		if t.Origin == origin {
			return *t, true
		}
	}
	return TabInfo{}, false
}

func (r *Registry) Unregister(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, id)
}

// List returns the tabs ordered by connection time.
func (r *Registry) List() []TabInfo {
	r.mu.RLock()
	out := make([]TabInfo, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, *t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// Idle returns the tabs not seen for longer than maxIdle.
func (r *Registry) Idle(maxIdle time.Duration) []TabInfo {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-maxIdle)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var idle []TabInfo
	for _, t := range r.tabs {
		if t.LastSeen.Before(cutoff) {
			idle = append(idle, *t)
		}
	}
	return idle
}
