package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/imagedex/internal/config"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/index"
	"github.com/Aman-CERP/imagedex/internal/output"
	"github.com/Aman-CERP/imagedex/internal/preflight"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	table        string
	imagesDir    string
	mode         string
	metadataOnly bool
	noTUI        bool
	workers      int
	loadRate     float64
	skipCheck    bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <source>",
		Short: "Index image records from a manifest or database",
		Long: `Index image records into the project store.

The source is either a JSON-lines manifest (.jsonl, .ndjson) with one record
per line, or a SQLite database (.db, .sqlite, .sqlite3) holding an images
table. File references are resolved against --images-dir, or the configured
paths.image_dir.

Each record is stored with its metadata fields and the descriptors extracted
from its image. Use --metadata-only to skip loading images entirely.

Use --mode create to discard existing records before indexing.`,
		Example: `  # Index a manifest
  imagedex index photos.jsonl

  # Rebuild from a SQLite table, images relative to ./images
  imagedex index catalog.db --table photos --images-dir ./images --mode create

  # Metadata only, plain progress output
  imagedex index photos.jsonl --metadata-only --no-tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C stops reading input; queued records are still committed
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.table, "table", record.DefaultImageTable, "Table to read when the source is a SQLite database")
	cmd.Flags().StringVar(&opts.imagesDir, "images-dir", "", "Directory image file references are relative to")
	cmd.Flags().StringVar(&opts.mode, "mode", string(store.OpenModeAppend), "Open mode: append or create")
	cmd.Flags().BoolVar(&opts.metadataOnly, "metadata-only", false, "Index metadata without loading images")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of extraction workers (default from config)")
	cmd.Flags().Float64Var(&opts.loadRate, "load-rate", 0, "Maximum image loads per second (default from config)")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip the first-run system check")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, source string, opts indexOptions) error {
	mode := store.OpenMode(opts.mode)
	if mode != store.OpenModeAppend && mode != store.OpenModeCreate {
		return apperrors.ValidationError(fmt.Sprintf("invalid mode %q", opts.mode), nil).
			WithSuggestion("use --mode append or --mode create")
	}

	root, cfg, err := loadProject()
	if err != nil {
		return apperrors.ConfigError("failed to load configuration", err)
	}
	applyIndexFlags(cfg, opts)

	src, err := openSource(source, opts.table)
	if err != nil {
		return err
	}

	if !opts.skipCheck {
		if err := firstRunCheck(ctx, cmd, cfg, root, source, opts); err != nil {
			_ = src.Close()
			return err
		}
	}

	storePath := cfg.StorePath(root)
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	pipeCfg := cfg.PipelineConfig()
	pipeCfg.MetadataOnly = opts.metadataOnly

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithStorePath(storePath),
		ui.WithQueueCapacity(pipeCfg.QueueCapacity))
	renderer := ui.NewRenderer(uiCfg)

	deps := index.Dependencies{
		Source:   src,
		Builder:  feature.NewChain(feature.NewColorHistogram()),
		Renderer: renderer,
		OpenWriter: func(ctx context.Context) (store.Writer, error) {
			return store.Open(ctx, store.Options{
				Path:       storePath,
				Mode:       mode,
				CacheSize:  cfg.Index.CacheSize,
				FlushEvery: cfg.Index.FlushEvery,
			})
		},
	}
	if !opts.metadataOnly {
		deps.Loader = &record.Loader{
			BaseDir:     imageDir(cfg, root, opts.imagesDir),
			MaxFileSize: cfg.Index.MaxFileSize,
		}
	}

	pipeline, err := index.New(pipeCfg, deps)
	if err != nil {
		_ = src.Close()
		return err
	}

	slog.Info("index_command_started",
		slog.String("source", source),
		slog.String("store", storePath),
		slog.String("mode", string(mode)))

	if err := renderer.Start(ctx); err != nil {
		// Fall back to no progress output if the renderer fails to start
		slog.Warn("progress_renderer_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	if err := pipeline.Start(ctx); err != nil {
		_ = src.Close()
		return lockHint(err)
	}

	result, err := pipeline.Wait()
	if err != nil {
		return lockHint(err)
	}

	renderer.Complete(ui.CompletionStats{
		Processed: result.Processed,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		Indexed:   result.Indexed,
		Duration:  result.Elapsed,
		PerItem:   result.PerItem,
		MaxDepth:  result.MaxDepth,
		StorePath: storePath,
	})

	out := output.New(cmd.ErrOrStderr())
	if result.Interrupted {
		out.Warning("Indexing interrupted; records read so far were committed")
	}
	if result.SourceErr != nil {
		out.Warningf("Source ended early: %v", result.SourceErr)
	}
	return nil
}

// firstRunCheck runs the preflight checks once per data directory and
// imagedex version. The writer lock is left to store.Open.
func firstRunCheck(ctx context.Context, cmd *cobra.Command, cfg *config.Config, root, source string, opts indexOptions) error {
	dataDir := cfg.DataPath(root)
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	target := preflight.Target{DataDir: dataDir, SourcePath: source}
	if !opts.metadataOnly {
		target.ImageDir = imageDir(cfg, root, opts.imagesDir)
	}

	checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
	results := checker.RunAll(ctx, target)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return apperrors.New(apperrors.ErrCodePreflight, "system check failed", nil).
			WithSuggestion("fix the errors above, or pass --skip-check")
	}

	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_warning",
				slog.String("check", r.Name),
				slog.String("message", r.Message))
		}
	}
	if err := preflight.MarkPassed(dataDir, results...); err != nil {
		slog.Warn("preflight_marker_failed", slog.String("error", err.Error()))
	}
	return nil
}

// applyIndexFlags lets explicit flags override configuration.
func applyIndexFlags(cfg *config.Config, opts indexOptions) {
	if opts.workers > 0 {
		cfg.Index.Workers = opts.workers
	}
	if opts.loadRate > 0 {
		cfg.Index.LoadRate = opts.loadRate
	}
}

// imageDir picks the directory image references resolve against.
func imageDir(cfg *config.Config, root, flag string) string {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return flag
		}
		return abs
	}
	return cfg.ImagePath(root)
}

// openSource opens a record source by file extension.
func openSource(path, table string) (record.Source, error) {
	if !fileExists(path) {
		return nil, apperrors.New(apperrors.ErrCodeFileNotFound, fmt.Sprintf("source not found: %s", path), nil).
			WithSuggestion("pass a .jsonl manifest or a SQLite database")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return record.OpenJSONL(path)
	case ".db", ".sqlite", ".sqlite3":
		return record.OpenSQLite(path, table)
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported source type: %s", filepath.Base(path)), nil).
			WithSuggestion("use a .jsonl manifest or a .db/.sqlite database")
	}
}

// lockHint adds a suggestion when another writer holds the store.
func lockHint(err error) error {
	if !errors.Is(err, store.ErrLocked) {
		return err
	}
	return apperrors.New(apperrors.ErrCodeStoreLocked, "store is locked by another writer", err).
		WithSuggestion("wait for the running 'imagedex index' to finish")
}
