package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/persist"
	"github.com/adityalohuni/tabcart/internal/session"
	"github.com/adityalohuni/tabcart/internal/slot"
)

type Status struct {
	Uptime    string    `json:"uptime"`
	Tabs      int       `json:"tabs"`
	Backend   string    `json:"backend"`
	Items     int       `json:"items"`
	Cart      cart.Info `json:"cart"`
	SlotError string    `json:"slot_error,omitempty"`
}

// Tabs is the part of the hub the admin endpoints need.
type Tabs interface {
	ListTabs() []session.TabInfo
	Count() int
	Disconnect(id string) error
	TabByOrigin(origin string) (session.TabInfo, bool)
}

type Handlers struct {
	StartedAt  time.Time
	Tabs       Tabs
	Slot       slot.Slot
	Key        string
	Backend    string
	ConfigPath string

	// Prune drops idle tabs before they are listed.
	Prune       func()
	SlotTimeout time.Duration
}

// CatalogView is the stored record as seen by the daemon.
type CatalogView struct {
	Origin string         `json:"origin,omitempty"`
	Items  []catalog.Item `json:"items"`
	Cart   cart.Info      `json:"cart"`
	// WrittenBy is the connected tab that wrote the record, if still present.
	WrittenBy *session.TabInfo `json:"written_by,omitempty"`
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.prune()
	resp := Status{
		Uptime:  time.Since(h.StartedAt).Round(time.Second).String(),
		Tabs:    h.Tabs.Count(),
		Backend: h.Backend,
	}
	view, err := h.catalog(r.Context())
	if err != nil {
		resp.SlotError = err.Error()
	} else {
		resp.Items = len(view.Items)
		resp.Cart = view.Cart
	}
	writeJSON(w, resp)
}

func (h *Handlers) TabsList(w http.ResponseWriter, _ *http.Request) {
	h.prune()
	writeJSON(w, h.Tabs.ListTabs())
}

func (h *Handlers) DisconnectTab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if err := h.Tabs.Disconnect(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

// Catalog returns the record currently held by the shared slot.
func (h *Handlers) Catalog(w http.ResponseWriter, r *http.Request) {
	view, err := h.catalog(r.Context())
	switch {
	case errors.Is(err, persist.ErrMalformedRecord):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, view)
}

func (h *Handlers) catalog(ctx context.Context) (CatalogView, error) {
	ctx, cancel := context.WithTimeout(ctx, h.slotTimeout())
	defer cancel()
	key := h.Key
	if key == "" {
		key = persist.DefaultKey
	}
	data, ok, err := h.Slot.Get(ctx, key)
	if err != nil {
		return CatalogView{}, err
	}
	if !ok {
		return CatalogView{Items: []catalog.Item{}}, nil
	}
	rec, err := persist.Decode(data)
	if err != nil {
		return CatalogView{}, err
	}
	view := CatalogView{Origin: rec.Origin, Items: rec.Items.Items(), Cart: cart.Compute(rec.Items)}
	if h.Tabs != nil {
		if t, ok := h.Tabs.TabByOrigin(rec.Origin); ok {
			view.WrittenBy = &t
		}
	}
	return view, nil
}

type ConfigPayload struct {
	Path               string `json:"path,omitempty"`
	SlotBackend        string `json:"slot_backend"`
	SlotPath           string `json:"slot_path"`
	HubURL             string `json:"hub_url"`
	Key                string `json:"key"`
	PublishDelay       string `json:"publish_delay"`
	EchoGuard          string `json:"echo_guard"`
	PollInterval       string `json:"poll_interval"`
	DaemonAddr         string `json:"daemon_addr"`
	DaemonBackend      string `json:"daemon_backend"`
	DaemonPath         string `json:"daemon_path"`
	TabMaxIdle         string `json:"tab_max_idle"`
	HubToken           string `json:"hub_token"`
	AdminToken         string `json:"admin_token"`
	LogLevel           string `json:"log_level"`
	AdminBaseURL       string `json:"admin_base_url"`
	TUIRefreshInterval string `json:"tui_refresh_interval"`
}

func (h *Handlers) ConfigGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	settings, err := config.LoadOrCreate(h.ConfigPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, payloadFromSettings(settings))
}

func (h *Handlers) ConfigSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload ConfigPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	durations := map[string]*time.Duration{}
	parse := func(name, raw string) bool {
		d := new(time.Duration)
		durations[name] = d
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return true
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v < 0 {
			http.Error(w, "invalid "+name, http.StatusBadRequest)
			return false
		}
		*d = v
		return true
	}
	if !parse("publish_delay", payload.PublishDelay) ||
		!parse("poll_interval", payload.PollInterval) ||
		!parse("tab_max_idle", payload.TabMaxIdle) ||
		!parse("tui_refresh_interval", payload.TUIRefreshInterval) {
		return
	}

	next := config.Settings{
		Path:               strings.TrimSpace(payload.Path),
		SlotBackend:        strings.TrimSpace(payload.SlotBackend),
		SlotPath:           strings.TrimSpace(payload.SlotPath),
		HubURL:             strings.TrimSpace(payload.HubURL),
		Key:                strings.TrimSpace(payload.Key),
		PublishDelay:       *durations["publish_delay"],
		EchoGuard:          strings.TrimSpace(payload.EchoGuard),
		PollInterval:       *durations["poll_interval"],
		DaemonAddr:         strings.TrimSpace(payload.DaemonAddr),
		DaemonBackend:      strings.TrimSpace(payload.DaemonBackend),
		DaemonPath:         strings.TrimSpace(payload.DaemonPath),
		TabMaxIdle:         *durations["tab_max_idle"],
		HubToken:           strings.TrimSpace(payload.HubToken),
		AdminToken:         strings.TrimSpace(payload.AdminToken),
		LogLevel:           strings.TrimSpace(payload.LogLevel),
		AdminBaseURL:       strings.TrimSpace(payload.AdminBaseURL),
		TUIRefreshInterval: *durations["tui_refresh_interval"],
	}
	if next.Path == "" {
		next.Path = h.ConfigPath
	}

	saved, err := config.Save(next)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, payloadFromSettings(saved))
}

func payloadFromSettings(s config.Settings) ConfigPayload {
	return ConfigPayload{
		Path:               s.Path,
		SlotBackend:        s.SlotBackend,
		SlotPath:           s.SlotPath,
		HubURL:             s.HubURL,
		Key:                s.Key,
		PublishDelay:       s.PublishDelay.String(),
		EchoGuard:          s.EchoGuard,
		PollInterval:       s.PollInterval.String(),
		DaemonAddr:         s.DaemonAddr,
		DaemonBackend:      s.DaemonBackend,
		DaemonPath:         s.DaemonPath,
		TabMaxIdle:         s.TabMaxIdle.String(),
		HubToken:           s.HubToken,
		AdminToken:         s.AdminToken,
		LogLevel:           s.LogLevel,
		AdminBaseURL:       s.AdminBaseURL,
		TUIRefreshInterval: s.TUIRefreshInterval.String(),
	}
}

func (h *Handlers) prune() {
	if h.Prune != nil {
		h.Prune()
	}
}

func (h *Handlers) slotTimeout() time.Duration {
	if h.SlotTimeout <= 0 {
		return 2 * time.Second
	}
	return h.SlotTimeout
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(value)
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid json payload")
	}
	return nil
}
