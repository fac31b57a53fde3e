package mcp

// Tool names.
const (
	ToolSearchSimilar = "search_similar"
	ToolSearchNearby  = "search_nearby"
	ToolIndexStatus   = "index_status"
)

// Limit bounds for every search tool.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// SearchSimilarInput defines the input schema for the search_similar tool.
// Identifier searches like a stored image; otherwise text and the optional
// coordinate form the query.
type SearchSimilarInput struct {
	Identifier string   `json:"identifier,omitempty" jsonschema:"identifier of a stored image to search like"`
	Text       string   `json:"text,omitempty" jsonschema:"words matched against title, tags and location"`
	Lat        *float64 `json:"lat,omitempty" jsonschema:"latitude in decimal degrees"`
	Lng        *float64 `json:"lng,omitempty" jsonschema:"longitude in decimal degrees"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchNearbyInput defines the input schema for the search_nearby tool.
type SearchNearbyInput struct {
	Lat      float64 `json:"lat" jsonschema:"latitude in decimal degrees"`
	Lng      float64 `json:"lng" jsonschema:"longitude in decimal degrees"`
	RadiusKM float64 `json:"radius_km,omitempty" jsonschema:"search radius in kilometres, default from config"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for both search tools.
type SearchOutput struct {
	Results []HitOutput `json:"results" jsonschema:"ranked images, best first"`
}

// HitOutput is one ranked image.
type HitOutput struct {
	Identifier string   `json:"identifier" jsonschema:"record identifier"`
	Title      string   `json:"title,omitempty"`
	Tags       string   `json:"tags,omitempty"`
	Location   string   `json:"location,omitempty"`
	Lat        string   `json:"lat,omitempty"`
	Lng        string   `json:"lng,omitempty"`
	File       string   `json:"file,omitempty" jsonschema:"image file reference"`
	MIMEType   string   `json:"mime_type,omitempty" jsonschema:"MIME type guessed from the file reference"`
	Score      float64  `json:"score" jsonschema:"fused score, higher is better"`
	DistanceKM float64  `json:"distance_km,omitempty" jsonschema:"great-circle distance from the query point"`
	Sources    []string `json:"sources,omitempty" jsonschema:"searchers that returned the image"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project   ProjectInfo `json:"project"`
	Stats     IndexStats  `json:"stats"`
	Searchers []string    `json:"searchers"`
	Queries   *QueryStats `json:"queries,omitempty"`
}

// ProjectInfo identifies the served project.
type ProjectInfo struct {
	RootPath  string `json:"root_path"`
	StorePath string `json:"store_path,omitempty"`
}

// IndexStats contains statistics about the store.
type IndexStats struct {
	Records        int    `json:"records"`
	Live           int    `json:"live"`
	Deleted        int    `json:"deleted"`
	Geotagged      int    `json:"geotagged"`
	Descriptors    int    `json:"descriptors"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	LastIndexed    string `json:"last_indexed,omitempty"`
	Writer         string `json:"writer"`
}

// QueryStats summarizes the searches served since the server started.
type QueryStats struct {
	TotalQueries        int64            `json:"total_queries"`
	ZeroHitPct          float64          `json:"zero_hit_pct"`
	KindCounts          map[string]int64 `json:"kind_counts"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	TopTerms            []TermCount      `json:"top_terms,omitempty"`
	ZeroHitQueries      []string         `json:"zero_hit_queries,omitempty"`
	Since               string           `json:"since"`
}

// TermCount is a searched term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}
