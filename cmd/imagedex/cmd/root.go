// Package cmd provides the CLI commands for imagedex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/imagedex/internal/config"
	"github.com/Aman-CERP/imagedex/internal/logging"
	"github.com/Aman-CERP/imagedex/internal/profiling"
	"github.com/Aman-CERP/imagedex/pkg/version"
)

// Profiling flags
var (
	profileOpts profiling.Options
	profile     *profiling.Session
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the imagedex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagedex",
		Short: "Index image collections and find similar images",
		Long: `imagedex builds a local index over image records and answers
similarity queries by location, text and visual descriptor.

Records come from a JSON-lines manifest or a SQLite table. Each record is
stored with its metadata and the features extracted from its image file.

Typical workflow:
  imagedex index photos.jsonl
  imagedex search "harbour at dusk"
  imagedex serve`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("imagedex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.imagedex/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and installs the
// debug file logger when --debug is set. serve installs its own file-only
// logger.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = s
	}

	if !debugMode || cmd.Name() == "serve" {
		return nil
	}

	cleanup, err := logging.SetupDefault(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var profErr error
	if profile != nil {
		profErr = profile.Stop()
		profile = nil
	}

	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	if profErr != nil {
		return fmt.Errorf("failed to write profiles: %w", profErr)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadProject resolves the project root from the working directory and
// loads its merged configuration.
func loadProject() (string, *config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := config.FindProjectRoot(wd)
	if err != nil {
		root = wd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
