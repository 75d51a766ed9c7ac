package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	cfg := flags.Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)

	log := flags.Lookup("log")
	require.NotNil(t, log)
	assert.Equal(t, filepath.Join(os.TempDir(), "tabcart-tui.log"), log.DefValue)

	require.NoError(t, flags.Parse([]string{"--config", "/tmp/tabcart.toml", "--log", "/tmp/tui.log", "-v"}))
	t.Cleanup(func() {
		configPath, logPath, verbose = "", log.DefValue, false
	})
	assert.Equal(t, "/tmp/tabcart.toml", configPath)
	assert.Equal(t, "/tmp/tui.log", logPath)
	assert.True(t, verbose)
}

func TestRootRejectsArgs(t *testing.T) {
	assert.Error(t, rootCmd.Args(rootCmd, []string{"extra"}))
}
