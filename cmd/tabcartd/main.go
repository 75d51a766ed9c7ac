// Command tabcartd runs the hub that websocket tabs share, together with
// the admin API and an MCP endpoint backed by an in-process tab.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adityalohuni/tabcart/internal/admin"
	"github.com/adityalohuni/tabcart/internal/backend"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/httpx"
	"github.com/adityalohuni/tabcart/internal/hub"
	"github.com/adityalohuni/tabcart/internal/logging"
	"github.com/adityalohuni/tabcart/internal/mcpserver"
	"github.com/adityalohuni/tabcart/internal/session"
	"github.com/adityalohuni/tabcart/internal/tab"
)

var (
	configPath string
	addr       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "tabcartd",
	Short:         "Shared slot hub for tabcart tabs",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/tabcart/config.toml)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides daemon.addr")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tabcartd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	settings, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if addr != "" {
		settings.DaemonAddr = addr
	}

	logger, err := logging.New(logging.Options{
		Level:       settings.LogLevel,
		Verbose:     verbose,
		Development: settings.LogDevelopment,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("loaded config", zap.String("path", settings.Path))

	opts := backend.ForDaemon(settings)
	opts.Logger = logger
	store, err := backend.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", settings.DaemonBackend, err)
	}
	defer store.Close()

	registry := session.NewRegistry()
	h := hub.New(store, hub.Options{
		CheckOrigin: func(*http.Request) bool { return true },
		Registry:    registry,
		Logger:      logger,
	})
	defer h.Close()

	// The MCP endpoint drives a tab hosted inside the daemon, so agent edits
	// reach websocket tabs like any other write.
	local := h.Local("mcp")
	defer local.Close()
	tabOpts, err := tab.OptionsFromSettings(settings, logger)
	if err != nil {
		return err
	}
	mcpTab := tab.New(local, tabOpts)
	if err := mcpTab.Open(ctx); err != nil {
		return fmt.Errorf("open mcp tab: %w", err)
	}
	defer mcpTab.Close()

	server := mcpserver.New(mcpTab, mcpserver.Options{
		Implementation: &mcp.Implementation{Name: "tabcartd", Version: "v1.0.0"},
	})
	mcpServer := server.MCPServer()
	streamHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)

	adminHandlers := &admin.Handlers{
		StartedAt:  time.Now(),
		Tabs:       h,
		Slot:       store,
		Key:        settings.Key,
		Backend:    settings.DaemonBackend,
		ConfigPath: settings.Path,
		Prune:      func() { h.PruneIdle(settings.TabMaxIdle) },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(logger))
	h.Mount(r, settings.HubToken)
	adminHandlers.Mount(r, settings.AdminToken)
	r.With(httpx.RequireToken(settings.HubToken)).Handle("/mcp/stream", streamHandler)

	httpServer := &http.Server{
		Addr:    settings.DaemonAddr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tabcartd listening",
			zap.String("addr", httpServer.Addr),
			zap.String("backend", settings.DaemonBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return pruneLoop(gctx, h, settings.TabMaxIdle)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked websocket connections are not closed by Shutdown.
		h.Close()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func pruneLoop(ctx context.Context, h *hub.Hub, maxIdle time.Duration) error {
	if maxIdle <= 0 {
		return nil
	}
	interval := maxIdle / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.PruneIdle(maxIdle)
		}
	}
}
