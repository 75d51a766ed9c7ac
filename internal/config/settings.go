package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

const (
	defaultDaemonAddr      = ":9099"
	defaultTabMaxIdle      = 30 * time.Minute
	defaultRefreshInterval = time.Second
	defaultPollInterval    = 250 * time.Millisecond
	defaultBackend         = "sqlite"
	defaultKey             = "items"
	defaultEchoGuard       = "origin"
	defaultLogLevel        = "info"
	defaultConfigDirName   = "tabcart"
	defaultConfigFileName  = "config.toml"
	defaultDataFileName    = "slot.db"
)

// Backends accepted in slot.backend and daemon.backend.
var Backends = []string{"memory", "sqlite", "file", "hub"}

type Settings struct {
	Path string

	// Slot used by tabs started from this config.
	SlotBackend string
	SlotPath    string
	HubURL      string
	Key         string

	PublishDelay time.Duration
	EchoGuard    string
	PollInterval time.Duration

	DaemonAddr    string
	DaemonBackend string
	DaemonPath    string
	TabMaxIdle    time.Duration

	HubToken   string
	AdminToken string

	LogLevel       string
	LogDevelopment bool

	AdminBaseURL       string
	TUIRefreshInterval time.Duration
}

type fileConfig struct {
	Slot   slotConfig   `toml:"slot"`
	Store  storeConfig  `toml:"store"`
	Sync   syncConfig   `toml:"sync"`
	Daemon daemonConfig `toml:"daemon"`
	Auth   authConfig   `toml:"auth"`
	Log    logConfig    `toml:"log"`
	TUI    tuiConfig    `toml:"tui"`
}

type slotConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	HubURL  string `toml:"hub_url"`
	Key     string `toml:"key"`
}

type storeConfig struct {
	PublishDelay string `toml:"publish_delay"`
}

type syncConfig struct {
	EchoGuard    string `toml:"echo_guard"`
	PollInterval string `toml:"poll_interval"`
}

type daemonConfig struct {
	Addr       string `toml:"addr"`
	Backend    string `toml:"backend"`
	Path       string `toml:"path"`
	TabMaxIdle string `toml:"tab_max_idle"`
}

type authConfig struct {
	HubToken   string `toml:"hub_token"`
	AdminToken string `toml:"admin_token"`
}

type logConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type tuiConfig struct {
	AdminBaseURL    string `toml:"admin_base_url"`
	RefreshInterval string `toml:"refresh_interval"`
}

func LoadOrCreate(path string) (Settings, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Settings{}, err
		}
	}

	cfg := defaultFileConfig(path)
	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
		var onDisk fileConfig
		if _, err := toml.DecodeFile(path, &onDisk); err != nil {
			return Settings{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		mergeFileConfig(&cfg, onDisk)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	changed := false
	if strings.TrimSpace(cfg.Auth.HubToken) == "" {
		cfg.Auth.HubToken = randomToken()
		changed = true
	}
	if strings.TrimSpace(cfg.Auth.AdminToken) == "" {
		cfg.Auth.AdminToken = randomToken()
		changed = true
	}
	if strings.TrimSpace(cfg.TUI.AdminBaseURL) == "" {
		cfg.TUI.AdminBaseURL = deriveAdminBaseURL(cfg.Daemon.Addr)
		changed = true
	}
	if strings.TrimSpace(cfg.Slot.HubURL) == "" {
		cfg.Slot.HubURL = deriveHubURL(cfg.TUI.AdminBaseURL)
		changed = true
	}

	if !exists || changed {
		if err := writeConfig(path, cfg); err != nil {
			return Settings{}, err
		}
	}

	return toSettings(path, cfg)
}

// Save writes settings to disk and returns the normalized values loaded back
// from the config file (including defaults and generated tokens when needed).
func Save(settings Settings) (Settings, error) {
	path := strings.TrimSpace(settings.Path)
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Settings{}, err
		}
	}

	cfg := fileConfig{
		Slot: slotConfig{
			Backend: settings.SlotBackend,
			Path:    settings.SlotPath,
			HubURL:  settings.HubURL,
			Key:     settings.Key,
		},
		Store: storeConfig{PublishDelay: settings.PublishDelay.String()},
		Sync: syncConfig{
			EchoGuard:    settings.EchoGuard,
			PollInterval: durationOrEmpty(settings.PollInterval),
		},
		Daemon: daemonConfig{
			Addr:       settings.DaemonAddr,
			Backend:    settings.DaemonBackend,
			Path:       settings.DaemonPath,
			TabMaxIdle: durationOrEmpty(settings.TabMaxIdle),
		},
		Auth: authConfig{
			HubToken:   settings.HubToken,
			AdminToken: settings.AdminToken,
		},
		Log: logConfig{
			Level:       settings.LogLevel,
			Development: settings.LogDevelopment,
		},
		TUI: tuiConfig{
			AdminBaseURL:    settings.AdminBaseURL,
			RefreshInterval: durationOrEmpty(settings.TUIRefreshInterval),
		},
	}

	defaults := defaultFileConfig(path)
	mergeFileConfig(&defaults, cfg)
	if err := writeConfig(path, defaults); err != nil {
		return Settings{}, err
	}
	return LoadOrCreate(path)
}

func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", defaultConfigDirName, defaultConfigFileName), nil
}

// defaultFileConfig keeps the shared slot next to the config file.
func defaultFileConfig(path string) fileConfig {
	dataPath := filepath.Join(filepath.Dir(path), defaultDataFileName)
	return fileConfig{
		Slot: slotConfig{
			Backend: defaultBackend,
			Path:    dataPath,
			Key:     defaultKey,
		},
		Store: storeConfig{PublishDelay: "0s"},
		Sync: syncConfig{
			EchoGuard:    defaultEchoGuard,
			PollInterval: defaultPollInterval.String(),
		},
		Daemon: daemonConfig{
			Addr:       defaultDaemonAddr,
			Backend:    defaultBackend,
			Path:       dataPath,
			TabMaxIdle: defaultTabMaxIdle.String(),
		},
		Log: logConfig{Level: defaultLogLevel},
		TUI: tuiConfig{RefreshInterval: defaultRefreshInterval.String()},
	}
}

func mergeFileConfig(dst *fileConfig, src fileConfig) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&dst.Slot.Backend, src.Slot.Backend)
	set(&dst.Slot.Path, src.Slot.Path)
	set(&dst.Slot.HubURL, src.Slot.HubURL)
	set(&dst.Slot.Key, src.Slot.Key)
	set(&dst.Store.PublishDelay, src.Store.PublishDelay)
	set(&dst.Sync.EchoGuard, src.Sync.EchoGuard)
	set(&dst.Sync.PollInterval, src.Sync.PollInterval)
	set(&dst.Daemon.Addr, src.Daemon.Addr)
	set(&dst.Daemon.Backend, src.Daemon.Backend)
	set(&dst.Daemon.Path, src.Daemon.Path)
	set(&dst.Daemon.TabMaxIdle, src.Daemon.TabMaxIdle)
	set(&dst.Auth.HubToken, src.Auth.HubToken)
	set(&dst.Auth.AdminToken, src.Auth.AdminToken)
	set(&dst.Log.Level, src.Log.Level)
	dst.Log.Development = dst.Log.Development || src.Log.Development
	set(&dst.TUI.AdminBaseURL, src.TUI.AdminBaseURL)
	set(&dst.TUI.RefreshInterval, src.TUI.RefreshInterval)
}

func toSettings(path string, cfg fileConfig) (Settings, error) {
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"store.publish_delay", cfg.Store.PublishDelay, new(time.Duration)},
		{"sync.poll_interval", cfg.Sync.PollInterval, new(time.Duration)},
		{"daemon.tab_max_idle", cfg.Daemon.TabMaxIdle, new(time.Duration)},
		{"tui.refresh_interval", cfg.TUI.RefreshInterval, new(time.Duration)},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s duration: %w", d.name, err)
		}
		if v < 0 {
			return Settings{}, fmt.Errorf("invalid %s duration: negative", d.name)
		}
		*d.dst = v
	}
	for name, backend := range map[string]string{"slot.backend": cfg.Slot.Backend, "daemon.backend": cfg.Daemon.Backend} {
		if !ValidBackend(backend) {
			return Settings{}, fmt.Errorf("invalid %s %q (want one of %s)", name, backend, strings.Join(Backends, ", "))
		}
	}
	if cfg.Daemon.Backend == "hub" {
		return Settings{}, errors.New("invalid daemon.backend: the daemon cannot use itself as backend")
	}
	if g := cfg.Sync.EchoGuard; g != "origin" && g != "value" {
		return Settings{}, fmt.Errorf("invalid sync.echo_guard %q (want origin or value)", g)
	}

	return Settings{
		Path:               path,
		SlotBackend:        cfg.Slot.Backend,
		SlotPath:           cfg.Slot.Path,
		HubURL:             cfg.Slot.HubURL,
		Key:                cfg.Slot.Key,
		PublishDelay:       *durations[0].dst,
		EchoGuard:          cfg.Sync.EchoGuard,
		PollInterval:       *durations[1].dst,
		DaemonAddr:         cfg.Daemon.Addr,
		DaemonBackend:      cfg.Daemon.Backend,
		DaemonPath:         cfg.Daemon.Path,
		TabMaxIdle:         *durations[2].dst,
		HubToken:           cfg.Auth.HubToken,
		AdminToken:         cfg.Auth.AdminToken,
		LogLevel:           cfg.Log.Level,
		LogDevelopment:     cfg.Log.Development,
		AdminBaseURL:       cfg.TUI.AdminBaseURL,
		TUIRefreshInterval: *durations[3].dst,
	}, nil
}

// ValidBackend reports whether name is one of Backends.
func ValidBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

func writeConfig(path string, cfg fileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString("# tabcart config for tabcartd, tabcart and tabcart-tui\n\n"); err != nil {
		return fmt.Errorf("write config header: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func deriveAdminBaseURL(addr string) string {
	host := strings.TrimSpace(addr)
	if host == "" {
		host = defaultDaemonAddr
	}
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/")
	}
	if strings.HasPrefix(host, ":") {
		return "http://127.0.0.1" + host
	}
	h, p, err := net.SplitHostPort(host)
	if err == nil {
		if h == "" || h == "0.0.0.0" || h == "::" || h == "[::]" {
			h = "127.0.0.1"
		}
		return "http://" + net.JoinHostPort(h, p)
	}
	if strings.Contains(host, ":") {
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, "9099")
}

// deriveHubURL turns the admin base URL into the websocket endpoint.
func deriveHubURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func durationOrEmpty(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
