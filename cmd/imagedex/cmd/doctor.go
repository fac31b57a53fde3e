package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/preflight"
)

// doctorReport is the JSON shape of `imagedex doctor --json`.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
		imagesDir  string
	)

	cmd := &cobra.Command{
		Use:   "doctor [source]",
		Short: "Check that the system is ready to index",
		Long: `Run the system checks an index run depends on: free disk space and
write access in the data directory, the file descriptor limit, the image
directory, and whether another index run holds the store. Pass a source to
check that it is readable too.

A passing run refreshes the marker that lets 'imagedex index' skip these
checks.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			return runDoctor(cmd.Context(), cmd, source, imagesDir, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	cmd.Flags().StringVar(&imagesDir, "images-dir", "", "Directory image file references are relative to")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, source, imagesDir string, jsonOutput, verbose bool) error {
	root, cfg, err := loadProject()
	if err != nil {
		return apperrors.ConfigError("failed to load configuration", err)
	}

	dataDir := cfg.DataPath(root)
	target := preflight.Target{
		DataDir:    dataDir,
		StorePath:  cfg.StorePath(root),
		SourcePath: source,
		ImageDir:   imageDir(cfg, root, imagesDir),
	}

	checker := preflight.New(
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithVerbose(verbose))
	results := checker.RunAll(ctx, target)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		_ = preflight.ClearMarker(dataDir)
		return apperrors.New(apperrors.ErrCodePreflight, "system check failed", nil)
	}
	return preflight.MarkPassed(dataDir, results...)
}
