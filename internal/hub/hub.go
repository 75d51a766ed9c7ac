// Package hub exposes a slot.Slot to remote tabs over websocket. Every
// connected tab may get and set keys; a successful set is broadcast as a
// change to every other tab, and changes made by the backend's other
// writers (other processes on the same file) are broadcast to all tabs.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/httpx"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/protocol"
	"github.com/adityalohuni/tabcart/internal/session"
	"github.com/adityalohuni/tabcart/internal/slot"
)

var ErrUnknownTab = errors.New("hub: unknown tab")

// Options configures the hub.
type Options struct {
	CheckOrigin     func(*http.Request) bool
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	// OpTimeout bounds each backend call made on behalf of a tab.
	OpTimeout time.Duration
	Registry  *session.Registry
	Logger    *zap.Logger
}

// conn is one tab: a websocket peer, or an in-process Local slot.
type conn struct {
	id    string
	ws    *websocket.Conn
	local *slot.Notifier
	mu    sync.Mutex
}

// Hub routes slot operations between websocket tabs and a backend.
type Hub struct {
	backend   slot.Slot
	upgrader  websocket.Upgrader
	writeWait time.Duration
	opTimeout time.Duration
	registry  *session.Registry
	logger    *zap.Logger

	mu    sync.RWMutex
	conns map[string]*conn

	// setMu serializes read-old/write/broadcast so old values are exact.
	setMu sync.Mutex

	cancel func()
	wg     sync.WaitGroup
}

func New(backend slot.Slot, opts Options) *Hub {
	up := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     opts.CheckOrigin,
	}
	if up.ReadBufferSize == 0 {
		up.ReadBufferSize = 4096
	}
	if up.WriteBufferSize == 0 {
		up.WriteBufferSize = 4096
	}
	writeWait := opts.WriteWait
	if writeWait == 0 {
		writeWait = 5 * time.Second
	}
	opTimeout := opts.OpTimeout
	if opTimeout == 0 {
		opTimeout = 10 * time.Second
	}
	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		backend:   backend,
		upgrader:  up,
		writeWait: writeWait,
		opTimeout: opTimeout,
		registry:  registry,
		logger:    logger.Named("hub"),
		conns:     make(map[string]*conn),
	}
	h.cancel = backend.OnChange(func(c slot.Change) {
		h.broadcast("", protocol.Message{Type: protocol.TypeChange, Key: c.Key, Value: c.NewValue, Old: c.OldValue})
	})
	return h
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &conn{id: uuid.New().String(), ws: ws}
	h.registry.Register(c.id, session.TabInfo{
		Transport:  "ws",
		RemoteAddr: httpx.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.wg.Add(1)
	defer h.wg.Done()

	h.logger.Info("tab connected", zap.String("conn", c.id))
	h.readLoop(c)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	h.registry.Unregister(c.id)
	_ = ws.Close()
	h.logger.Info("tab disconnected", zap.String("conn", c.id))
}

func (h *Hub) readLoop(c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ws invalid message", zap.String("conn", c.id), zap.Error(err))
			continue
		}
		h.registry.Seen(c.id)
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *conn, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeHello:
		h.registry.Rename(c.id, msg.Name)
		h.write(c, protocol.Result(msg.ID))
	case protocol.TypeGet:
		ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
		val, ok, err := h.backend.Get(ctx, msg.Key)
		cancel()
		if err != nil {
			h.write(c, protocol.Failure(msg.ID, err))
			return
		}
		res := protocol.Result(msg.ID)
		res.Key = msg.Key
		res.Found = ok
		res.Value = val
		h.write(c, res)
	case protocol.TypeSet:
		if err := h.set(c, msg.Key, msg.Value); err != nil {
			h.write(c, protocol.Failure(msg.ID, err))
			return
		}
		h.write(c, protocol.Result(msg.ID))
	default:
		h.write(c, protocol.Failure(msg.ID, errors.New("unknown message type "+string(msg.Type))))
	}
}

func (h *Hub) set(from *conn, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	h.setMu.Lock()
	defer h.setMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	old, existed, err := h.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if existed && slot.Same(old, value) {
		return nil
	}
	if err := h.backend.Set(ctx, key, value); err != nil {
		return err
	}
	h.registry.RecordWrite(from.id, session.Write{Key: key, Origin: persist.Origin(value), Size: len(value)})
	h.broadcast(from.id, protocol.Message{Type: protocol.TypeChange, Key: key, Value: value, Old: old})
	return nil
}

// broadcast sends msg to every connection except skip.
func (h *Hub) broadcast(skip string, msg protocol.Message) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for id, c := range h.conns {
		if id != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.write(c, msg)
	}
}

func (h *Hub) write(c *conn, msg protocol.Message) {
	if c.local != nil {
		if msg.Type == protocol.TypeChange {
			c.local.Emit(slot.Change{Key: msg.Key, OldValue: msg.Old, NewValue: msg.Value})
		}
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(h.writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("ws write failed", zap.String("conn", c.id), zap.Error(err))
	}
}

// ListTabs returns the connected tabs.
func (h *Hub) ListTabs() []session.TabInfo {
	return h.registry.List()
}

// TabByOrigin finds the connected tab whose last write carried origin.
func (h *Hub) TabByOrigin(origin string) (session.TabInfo, bool) {
	return h.registry.ByOrigin(origin)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Disconnect closes the connection of tab id.
func (h *Hub) Disconnect(id string) error {
	h.mu.RLock()
	c := h.conns[id]
	h.mu.RUnlock()
	if c == nil || c.local != nil {
		return ErrUnknownTab
	}
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by admin"),
		time.Now().Add(h.writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}

// PruneIdle disconnects websocket tabs idle for longer than maxIdle and
// returns their ids.
func (h *Hub) PruneIdle(maxIdle time.Duration) []string {
	var pruned []string
	for _, t := range h.registry.Idle(maxIdle) {
		if t.Transport != "ws" {
			continue
		}
		if err := h.Disconnect(t.ID); err == nil {
			pruned = append(pruned, t.ID)
			h.logger.Info("pruned idle tab", zap.String("conn", t.ID), zap.Time("last_seen", t.LastSeen))
		}
	}
	return pruned
}

// Close drops every websocket connection, waits for their handlers to
// return and detaches from the backend. Local slots and the backend are
// left to their owners.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		if c.ws != nil {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
	h.wg.Wait()
}

// Local returns an in-process tab on the hub. It implements slot.Slot:
// its writes reach every websocket tab, and it is notified of theirs.
func (h *Hub) Local(name string) *Local {
	c := &conn{id: uuid.New().String(), local: slot.NewNotifier(h.logger)}
	h.registry.Register(c.id, session.TabInfo{Name: name, Transport: "local"})
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	return &Local{Notifier: c.local, hub: h, conn: c}
}

type Local struct {
	*slot.Notifier
	hub  *Hub
	conn *conn
	once sync.Once
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	l.hub.registry.Seen(l.conn.id)
	return l.hub.backend.Get(ctx, key)
}

func (l *Local) Set(_ context.Context, key string, value []byte) error {
	return l.hub.set(l.conn, key, value)
}

// Close removes the tab from the hub.
func (l *Local) Close() error {
	l.once.Do(func() {
		l.hub.mu.Lock()
		delete(l.hub.conns, l.conn.id)
		l.hub.mu.Unlock()
		l.hub.registry.Unregister(l.conn.id)
		l.Notifier.Close()
	})
	return nil
}
