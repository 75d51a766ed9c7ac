// Command tabcart opens a tab on the configured slot and runs one catalog or
// cart command against it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/backend"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/logging"
	"github.com/adityalohuni/tabcart/internal/tab"
)

var (
	// Global flags
	configPath  string
	backendName string
	verbose     bool
	jsonOutput  bool

	settings config.Settings
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tabcart",
	Short: "Catalog and cart shared between tabs",
	Long: `tabcart keeps a product catalog and its shopping cart in a shared slot.

Every invocation opens its own tab: it hydrates from the slot, applies the
command, writes the result back, and any other open tab picks it up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.LoadOrCreate(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		if backendName != "" {
			if !config.ValidBackend(backendName) {
				return fmt.Errorf("unknown backend %q", backendName)
			}
			settings.SlotBackend = backendName
		}
		logger, err = logging.New(logging.Options{
			Level:       settings.LogLevel,
			Verbose:     verbose,
			Development: settings.LogDevelopment,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/tabcart/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "slot backend: memory, sqlite, file or hub")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")

	rootCmd.AddCommand(itemsCmd, addCmd, updateCmd, removeCmd, seedCmd)
	rootCmd.AddCommand(cartCmd, watchCmd, mcpCmd, hubCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tabcart:", describe(err))
		os.Exit(1)
	}
}

// session is one open tab plus the slot it owns.
type session struct {
	*tab.Tab
	slot backend.Slot

	mu       sync.Mutex
	delayErr error
}

func openSession(ctx context.Context, name string) (*session, error) {
	opts := backend.ForTab(settings, name)
	opts.Logger = logger
	s, err := backend.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	tabOpts, err := tab.OptionsFromSettings(settings, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	sess := &session{slot: s}
	tabOpts.OnError = sess.recordDelayed
	sess.Tab = tab.New(s, tabOpts)
	if err := sess.Open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Debug("tab open", zap.String("tab", sess.ID()), zap.String("backend", settings.SlotBackend))
	return sess, nil
}

func (s *session) recordDelayed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delayErr == nil {
		s.delayErr = err
	}
}

// settle waits until delayed commands have been applied and returns the
// first one that failed.
func (s *session) settle(ctx context.Context) error {
	done := make(chan struct{})
	var once sync.Once
	unsub, err := s.SubscribeLoading(func(loading bool) {
		if !loading {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return err
	}
	defer unsub()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayErr
}

func (s *session) Close() {
	s.Tab.Close()
	if err := s.slot.Close(); err != nil {
		logger.Warn("close slot", zap.Error(err))
	}
}

// withTab runs fn on a fresh tab and waits for delayed commands before
// closing it.
func withTab(cmd *cobra.Command, fn func(*session) error) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, "cli:"+cmd.Name())
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := fn(sess); err != nil {
		return err
	}
	return sess.settle(ctx)
}

func describe(err error) string {
	var stock *catalog.InsufficientStockError
	if errors.As(err, &stock) {
		return fmt.Sprintf("%s is out of stock", stock.ID)
	}
	return err.Error()
}
