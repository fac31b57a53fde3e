package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/imagedex/internal/engine"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show the contents and health of the project store: record counts,
geotagged and descriptor coverage, store size, last modification and
whether an index run currently holds the writer lock.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, cfg, err := loadProject()
	if err != nil {
		return apperrors.ConfigError("failed to load configuration", err)
	}

	eng, err := engine.Open(ctx, cfg, root)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	info, err := eng.Status(ctx)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}
