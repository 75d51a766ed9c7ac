// Command tabcart-tui is an interactive tab: it shows the shared catalog,
// moves units in and out of the cart, and follows other tabs live.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/adminclient"
	"github.com/adityalohuni/tabcart/internal/backend"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/logging"
	"github.com/adityalohuni/tabcart/internal/tab"
)

var (
	configPath string
	logPath    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "tabcart-tui",
	Short:         "Interactive tabcart tab",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/tabcart/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", filepath.Join(os.TempDir(), "tabcart-tui.log"), "log file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newAdminClient(s config.Settings) *adminclient.Client {
	return adminclient.New(s.AdminBaseURL, s.AdminToken, &http.Client{Timeout: 4 * time.Second})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tabcart-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	// The terminal belongs to the UI, so logs go to a file.
	logger, err := logging.New(logging.Options{
		Level:       settings.LogLevel,
		Verbose:     verbose,
		Development: settings.LogDevelopment,
		OutputPaths: []string{logPath},
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	opts := backend.ForTab(settings, "tui")
	opts.Logger = logger
	store, err := backend.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open %s slot: %w", settings.SlotBackend, err)
	}
	defer store.Close()

	tabOpts, err := tab.OptionsFromSettings(settings, logger)
	if err != nil {
		return err
	}
	tabOpts.OnError = func(err error) {
		logger.Warn("delayed command failed", zap.Error(err))
	}
	t := tab.New(store, tabOpts)
	if err := t.Open(ctx); err != nil {
		return err
	}
	defer t.Close()

	f := newFeed()
	unsubItems, err := t.SubscribeItems(func(catalog.Snapshot) { f.poke() })
	if err != nil {
		return err
	}
	defer unsubItems()
	unsubLoading, err := t.SubscribeLoading(func(bool) { f.poke() })
	if err != nil {
		return err
	}
	defer unsubLoading()

	zone.NewGlobal()
	defer zone.Close()

	m := newModel(t, f, newAdminClient(settings), settings)
	m.syncLayout()
	m.syncListContent()
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
