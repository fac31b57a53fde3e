package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/imagedex/internal/engine"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/geo"
	"github.com/Aman-CERP/imagedex/internal/mcp"
	"github.com/Aman-CERP/imagedex/internal/output"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	like   string
	lat    float64
	lng    float64
	radius float64
	format string // "text", "json"

	hasCoordinate bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the image index",
		Long: `Search the image index by text, location, or an indexed image.

Text is matched against titles, tags and locations. --lat and --lng add a
location; without text they find every image within --radius kilometres,
nearest first. --like uses a stored record as the query and ranks images
by location, text and visual similarity to it.`,
		Example: `  imagedex search "harbour at dusk"
  imagedex search --lat 40.7484 --lng -73.9857 --radius 2
  imagedex search bridge --lat 40.7061 --lng -73.9969
  imagedex search --like img-42 -n 5 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.hasCoordinate = cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng")
			if opts.hasCoordinate && !(cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")) {
				return apperrors.ValidationError("--lat and --lng must be given together", nil)
			}
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.like, "like", "", "Find images similar to this indexed record identifier")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "Latitude in decimal degrees")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "Longitude in decimal degrees")
	cmd.Flags().Float64VarP(&opts.radius, "radius", "r", 0, "Radius in km for location-only search (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, text string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return apperrors.ValidationError(fmt.Sprintf("invalid format %q", opts.format), nil).
			WithSuggestion("use --format text or --format json")
	}
	if text == "" && opts.like == "" && !opts.hasCoordinate {
		return apperrors.New(apperrors.ErrCodeQueryEmpty, "nothing to search for", nil).
			WithSuggestion("give search text, --lat/--lng, or --like <identifier>")
	}
	center := geo.Coordinate{Lat: opts.lat, Lng: opts.lng}
	if opts.hasCoordinate && !center.Valid() {
		return apperrors.New(apperrors.ErrCodeInvalidCoordinate,
			fmt.Sprintf("invalid coordinate (%g, %g)", opts.lat, opts.lng), nil)
	}

	root, cfg, err := loadProject()
	if err != nil {
		return apperrors.ConfigError("failed to load configuration", err)
	}

	eng, err := engine.Open(ctx, cfg, root)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	slog.Info("search_started",
		slog.String("query", text),
		slog.String("like", opts.like),
		slog.Bool("coordinate", opts.hasCoordinate),
		slog.Int("limit", opts.limit))

	var (
		hits   []searcher.Hit
		header string
	)
	switch {
	case opts.like != "":
		header = opts.like
		hits, err = eng.SearchLike(ctx, opts.like, opts.limit)
	case text == "":
		header = fmt.Sprintf("(%g, %g)", opts.lat, opts.lng)
		hits, err = eng.SearchNearby(ctx, opts.lat, opts.lng, opts.radius, opts.limit)
	default:
		header = fmt.Sprintf("%q", text)
		q := searcher.Query{Text: text}
		if opts.hasCoordinate {
			q.Lat, q.Lng = center.Format()
			header += fmt.Sprintf(" near (%g, %g)", opts.lat, opts.lng)
		}
		hits, err = eng.Search(ctx, q, opts.limit)
	}
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.Int("results", len(hits)))

	if opts.format == "json" {
		return writeHitsJSON(cmd, hits)
	}
	output.New(cmd.OutOrStdout()).Hits(header, hits)
	return nil
}

// writeHitsJSON encodes hits in the same shape the MCP tools return.
func writeHitsJSON(cmd *cobra.Command, hits []searcher.Hit) error {
	results := make([]mcp.HitOutput, 0, len(hits))
	for _, h := range hits {
		results = append(results, mcp.ToHitOutput(h))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(mcp.SearchOutput{Results: results})
}
