package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/imagedex/internal/engine"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/logging"
	"github.com/Aman-CERP/imagedex/internal/mcp"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/telemetry"
	"github.com/Aman-CERP/imagedex/internal/watcher"
	"github.com/Aman-CERP/imagedex/pkg/version"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start a Model Context Protocol server exposing the project index.

Tools:
  search_similar  rank images by text, location or an indexed record
  search_nearby   list images within a radius of a coordinate
  index_status    report store contents and query statistics

stdout carries JSON-RPC only; logs go to ~/.imagedex/logs/imagedex.log.
Run 'imagedex index' first. Later index runs are picked up without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default from config)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	root, cfg, err := loadProject()
	if err != nil {
		return apperrors.ConfigError("failed to load configuration", err)
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupDefault(logging.ServeConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	slog.Info("serve_started",
		slog.String("root", root),
		slog.String("version", version.Version))

	metrics := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	eng, err := engine.NewReloader(ctx, func(ctx context.Context) (*engine.Engine, error) {
		return engine.Open(ctx, cfg, root, engine.WithMetrics(metrics))
	})
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "serve_engine_failed", apperrors.LogAttrs(err)...)
		return err
	}
	defer func() { _ = eng.Close() }()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if err := watchStore(watchCtx, cfg.StorePath(root), eng); err != nil {
		// Searches still work, they just won't see later index runs
		slog.Warn("store_watch_unavailable", slog.String("error", err.Error()))
	}

	srv, err := mcp.NewServer(eng, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.SetMetrics(metrics)

	if transport == "" {
		transport = cfg.Server.Transport
	}
	if err := srv.Serve(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchStore reloads eng in the background whenever another process
// commits to the store at storePath, once its writer lock is released.
func watchStore(ctx context.Context, storePath string, eng *engine.Reloader) error {
	w, err := watcher.NewStoreWatcher(storePath, watcher.Options{
		Busy: func() bool {
			active, err := store.WriterActive(storePath)
			return err == nil && active
		},
	})
	if err != nil {
		return err
	}
	go func() {
		_ = w.Run(ctx, func(ctx context.Context) {
			_ = eng.Reload(ctx)
		})
	}()
	return nil
}
