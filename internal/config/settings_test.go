package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabcart", "config.toml")
	s, err := LoadOrCreate(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.SlotBackend)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "slot.db"), s.SlotPath)
	assert.Equal(t, "items", s.Key)
	assert.Equal(t, "origin", s.EchoGuard)
	assert.Zero(t, s.PublishDelay)
	assert.Equal(t, 250*time.Millisecond, s.PollInterval)
	assert.Equal(t, "http://127.0.0.1:9099", s.AdminBaseURL)
	assert.Equal(t, "ws://127.0.0.1:9099/ws", s.HubURL)
	assert.Len(t, s.HubToken, 32)
	assert.NotEqual(t, s.HubToken, s.AdminToken)

	again, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, s, again, "generated tokens are persisted")
}

func TestLoadOrCreateMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[slot]
backend = "file"
path = "/tmp/tabs"

[store]
publish_delay = "500ms"

[sync]
echo_guard = "value"

[log]
level = "debug"
`), 0o600))

	s, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "file", s.SlotBackend)
	assert.Equal(t, "/tmp/tabs", s.SlotPath)
	assert.Equal(t, 500*time.Millisecond, s.PublishDelay)
	assert.Equal(t, "value", s.EchoGuard)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "sqlite", s.DaemonBackend)
}

func TestLoadOrCreateRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"backend":  "[slot]\nbackend = \"redis\"\n",
		"guard":    "[sync]\necho_guard = \"hope\"\n",
		"duration": "[store]\npublish_delay = \"soon\"\n",
		"negative": "[store]\npublish_delay = \"-1s\"\n",
		"daemon":   "[daemon]\nbackend = \"hub\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadOrCreate(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s, err := LoadOrCreate(path)
	require.NoError(t, err)

	s.PublishDelay = 500 * time.Millisecond
	s.SlotBackend = "memory"
	saved, err := Save(s)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, saved.PublishDelay)
	assert.Equal(t, "memory", saved.SlotBackend)
	assert.Equal(t, s.HubToken, saved.HubToken)
}

func TestDeriveAdminBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9099", deriveAdminBaseURL(":9099"))
	assert.Equal(t, "http://127.0.0.1:8080", deriveAdminBaseURL("0.0.0.0:8080"))
	assert.Equal(t, "https://cart.local", deriveAdminBaseURL("https://cart.local/"))
	assert.Equal(t, "wss://cart.local/ws", deriveHubURL("https://cart.local"))
}
