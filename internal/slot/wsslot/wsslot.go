// Package wsslot implements slot.Slot as a client of the tabcart hub.
package wsslot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/protocol"
	"github.com/adityalohuni/tabcart/internal/slot"
)

var errDisconnected = errors.New("hub connection lost")

type Options struct {
	Token string
	// Name is reported to the hub and shown in its tab listing.
	Name string
	// Timeout bounds each round trip when the caller's context has no
	// deadline. Default: 10s.
	Timeout time.Duration
	Logger  *zap.Logger
}

type Slot struct {
	*slot.Notifier
	conn    *websocket.Conn
	timeout time.Duration
	logger  *zap.Logger

	writeMu sync.Mutex
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan protocol.Message
	err     error

	done chan struct{}
	once sync.Once
}

// Dial connects to the hub websocket endpoint at url and says hello.
func Dial(ctx context.Context, url string, opts Options) (*Slot, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("slot.ws")

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, slot.Unavailable("dial", url, err)
	}

	s := &Slot{
		Notifier: slot.NewNotifier(logger),
		conn:     conn,
		timeout:  opts.Timeout,
		logger:   logger,
		pending:  make(map[string]chan protocol.Message),
		done:     make(chan struct{}),
	}
	go s.readLoop()

	if _, err := s.call(ctx, protocol.Message{Type: protocol.TypeHello, Name: opts.Name}); err != nil {
		_ = s.Close()
		return nil, slot.Unavailable("dial", url, err)
	}
	return s, nil
}

func (s *Slot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.call(ctx, protocol.Message{Type: protocol.TypeGet, Key: key})
	if err != nil {
		return nil, false, slot.Unavailable("get", key, err)
	}
	if !res.Found {
		return nil, false, nil
	}
	if res.Value == nil {
		res.Value = []byte{}
	}
	return res.Value, true, nil
}

func (s *Slot) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.call(ctx, protocol.Message{Type: protocol.TypeSet, Key: key, Value: value}); err != nil {
		return slot.Unavailable("set", key, err)
	}
	return nil
}

// Close closes the connection and waits for the reader to exit.
func (s *Slot) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		<-s.done
		s.Notifier.Close()
	})
	return err
}

// Done is closed once the connection to the hub is gone.
func (s *Slot) Done() <-chan struct{} { return s.done }

func (s *Slot) call(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	msg.ID = strconv.FormatUint(s.seq.Add(1), 10)
	data, err := json.Marshal(msg)
	if err != nil {
		return protocol.Message{}, err
	}

	ch := make(chan protocol.Message, 1)
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return protocol.Message{}, err
	}
	s.pending[msg.ID] = ch
	s.mu.Unlock()

	s.writeMu.Lock()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(msg.ID)
		return protocol.Message{}, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return protocol.Message{}, s.failure()
		}
		if res.Error != "" {
			return res, errors.New(res.Error)
		}
		return res, nil
	case <-ctx.Done():
		s.forget(msg.ID)
		return protocol.Message{}, ctx.Err()
	}
}

func (s *Slot) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Slot) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return errDisconnected
}

func (s *Slot) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("invalid hub message", zap.Error(err))
			continue
		}
		switch msg.Type {
		case protocol.TypeChange:
			s.Emit(slot.Change{Key: msg.Key, OldValue: msg.Old, NewValue: msg.Value})
		case protocol.TypeResult:
			s.mu.Lock()
			ch := s.pending[msg.ID]
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		}
	}
}

// fail records the terminal error and releases every waiting call.
func (s *Slot) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("%w: %v", errDisconnected, err)
	}
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.logger.Debug("hub connection closed", zap.Error(err))
}
