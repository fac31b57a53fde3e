package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/imagedex/internal/config"
	"github.com/Aman-CERP/imagedex/internal/geo"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/telemetry"
	"github.com/Aman-CERP/imagedex/internal/ui"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
	"github.com/Aman-CERP/imagedex/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "imagedex"

// SearchEngine is the read side the server exposes. *engine.Engine
// implements it.
type SearchEngine interface {
	Search(ctx context.Context, query searcher.Query, limit int) ([]searcher.Hit, error)
	SearchLike(ctx context.Context, identifier string, limit int) ([]searcher.Hit, error)
	SearchNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]searcher.Hit, error)
	Lookup(ctx context.Context, identifier string) (record.Fields, error)
	Status(ctx context.Context) (ui.StatusInfo, error)
	Searchers() []string
}

// Server is the MCP server for imagedex. It bridges AI clients with the
// image search engine.
type Server struct {
	mcp      *mcp.Server
	engine   SearchEngine
	config   *config.Config
	logger   *slog.Logger
	rootPath string

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolSearchSimilar,
		Description: "Find images similar to a stored image (identifier) or to a description made of words and an optional coordinate. Results fuse geographic proximity, title/tags/location text and color descriptors.",
	},
	{
		Name:        ToolSearchNearby,
		Description: "Find images taken within a radius of a coordinate, closest first.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report how many images are indexed, how many are geotagged or carry descriptors, whether an indexing run is active, and recent query statistics.",
	},
}

// NewServer creates a new MCP server over engine. rootPath is reported by
// index_status.
func NewServer(engine SearchEngine, cfg *config.Config, rootPath string) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		config:   cfg,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// SetMetrics sets the query metrics collector reported by index_status
// and registers the query_metrics resource.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// the markdown (search tools) or *IndexStatusOutput (index_status).
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchSimilar:
		var in SearchSimilarInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		query, hits, err := s.searchSimilar(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatHits(query, hits), nil
	case ToolSearchNearby:
		var in SearchNearbyInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		query, hits, err := s.searchNearby(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatHits(query, hits), nil
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeArgs converts loosely typed tool arguments into an input struct.
func decodeArgs(args map[string]any, into any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// searchSimilar runs a search_similar request. It returns a description of
// the query for formatting.
func (s *Server) searchSimilar(ctx context.Context, in SearchSimilarInput) (string, []searcher.Hit, error) {
	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, DefaultLimit, 1, MaxLimit)

	identifier := strings.TrimSpace(in.Identifier)
	text := strings.TrimSpace(in.Text)

	if (in.Lat == nil) != (in.Lng == nil) {
		return "", nil, NewInvalidParamsError("lat and lng must be given together")
	}
	if identifier == "" && text == "" && in.Lat == nil {
		return "", nil, NewInvalidParamsError("one of identifier, text or lat/lng is required")
	}

	var (
		desc string
		hits []searcher.Hit
		err  error
	)

	s.logger.Info("search_similar_started",
		slog.String("request_id", requestID),
		slog.String("identifier", identifier),
		slog.String("text", text),
		slog.Int("limit", limit))

	if identifier != "" {
		desc = fmt.Sprintf("`%s`", identifier)
		hits, err = s.engine.SearchLike(ctx, identifier, limit)
	} else {
		q := searcher.Query{Text: text}
		parts := make([]string, 0, 2)
		if text != "" {
			parts = append(parts, fmt.Sprintf("%q", text))
		}
		if in.Lat != nil {
			c := geo.Coordinate{Lat: *in.Lat, Lng: *in.Lng}
			if !c.Valid() {
				return "", nil, NewInvalidParamsError(fmt.Sprintf("invalid coordinate %g,%g", c.Lat, c.Lng))
			}
			q.Lat, q.Lng = c.Format()
			parts = append(parts, fmt.Sprintf("(%s, %s)", q.Lat, q.Lng))
		}
		desc = strings.Join(parts, " near ")
		hits, err = s.engine.Search(ctx, q, limit)
	}

	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_similar_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", nil, MapError(err)
	}

	s.logger.Info("search_similar_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(hits)))
	return desc, hits, nil
}

// searchNearby runs a search_nearby request.
func (s *Server) searchNearby(ctx context.Context, in SearchNearbyInput) (string, []searcher.Hit, error) {
	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, DefaultLimit, 1, MaxLimit)

	c := geo.Coordinate{Lat: in.Lat, Lng: in.Lng}
	if !c.Valid() {
		return "", nil, NewInvalidParamsError(fmt.Sprintf("invalid coordinate %g,%g", in.Lat, in.Lng))
	}
	if in.RadiusKM < 0 {
		return "", nil, NewInvalidParamsError("radius_km must not be negative")
	}

	radius := in.RadiusKM
	if radius == 0 {
		radius = s.config.Search.GeoThresholdKM
	}

	s.logger.Info("search_nearby_started",
		slog.String("request_id", requestID),
		slog.Float64("lat", in.Lat),
		slog.Float64("lng", in.Lng),
		slog.Float64("radius_km", radius),
		slog.Int("limit", limit))

	hits, err := s.engine.SearchNearby(ctx, in.Lat, in.Lng, radius, limit)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_nearby_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", nil, MapError(err)
	}

	s.logger.Info("search_nearby_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(hits)))

	lat, lng := c.Format()
	return fmt.Sprintf("(%s, %s) within %g km", lat, lng, radius), hits, nil
}

// indexStatus builds the index_status output.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	requestID := generateRequestID()

	info, err := s.engine.Status(ctx)
	if err != nil {
		s.logger.Error("index_status_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Project: ProjectInfo{
			RootPath:  s.rootPath,
			StorePath: info.StorePath,
		},
		Stats: IndexStats{
			Records:        info.Records,
			Live:           info.Live,
			Deleted:        info.Deleted,
			Geotagged:      info.Geotagged,
			Descriptors:    info.Descriptors,
			IndexSizeBytes: info.StoreSize,
			Writer:         info.Writer,
		},
		Searchers: s.engine.Searchers(),
	}
	if !info.LastModified.IsZero() {
		out.Stats.LastIndexed = info.LastModified.Format(time.RFC3339)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		stats := toQueryStats(metrics.Snapshot())
		out.Queries = &stats
	}

	s.logger.Info("index_status_completed",
		slog.String("request_id", requestID),
		slog.Int("live", info.Live),
		slog.String("writer", info.Writer))
	return out, nil
}

// toQueryStats converts a telemetry snapshot to the tool output shape.
func toQueryStats(snap telemetry.Snapshot) QueryStats {
	out := QueryStats{
		TotalQueries:        snap.TotalQueries,
		ZeroHitPct:          snap.ZeroHitPercentage(),
		KindCounts:          make(map[string]int64, len(snap.KindCounts)),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
		TopTerms:            make([]TermCount, 0, len(snap.TopTerms)),
		ZeroHitQueries:      snap.ZeroHitQueries,
		Since:               snap.Since.Format(time.RFC3339),
	}
	for kind, n := range snap.KindCounts {
		out.KindCounts[string(kind)] = n
	}
	for bucket, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = n
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, TermCount{Term: tc.Term, Count: tc.Count})
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchSimilar,
		Description: toolInfos[0].Description,
	}, s.mcpSearchSimilarHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchNearby,
		Description: toolInfos[1].Description,
	}, s.mcpSearchNearbyHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: toolInfos[2].Description,
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

// mcpSearchSimilarHandler is the MCP SDK handler for the search_similar tool.
func (s *Server) mcpSearchSimilarHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchSimilarInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	_, hits, err := s.searchSimilar(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(hits), nil
}

// mcpSearchNearbyHandler is the MCP SDK handler for the search_nearby tool.
func (s *Server) mcpSearchNearbyHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchNearbyInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	_, hits, err := s.searchNearby(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(hits), nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// Serve starts the server with the specified transport and blocks until
// ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("root", s.rootPath))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
