package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/imagedex/internal/record"
)

const (
	uriScheme = "imagedex://"

	// RecordURITemplate addresses one stored image by identifier.
	RecordURITemplate = uriScheme + "records/{identifier}"

	// QueryMetricsURI addresses the query telemetry resource.
	QueryMetricsURI = uriScheme + "query_metrics"
)

// RecordOutput is the JSON body of a record resource.
type RecordOutput struct {
	Identifier string `json:"identifier"`
	DBID       string `json:"db_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Tags       string `json:"tags,omitempty"`
	Location   string `json:"location,omitempty"`
	Lat        string `json:"lat,omitempty"`
	Lng        string `json:"lng,omitempty"`
	File       string `json:"file,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`

	// Features lists the feature fields stored with the image. Their
	// values are encoded vectors and are left out.
	Features []string `json:"features,omitempty"`
}

// registerResources registers the resources available without telemetry.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: RecordURITemplate,
		Name:        "record",
		Description: "Stored metadata of an indexed image",
		MIMEType:    "application/json",
	}, s.handleRecordResource)
}

// handleRecordResource returns the stored fields of one image.
func (s *Server) handleRecordResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := extractRecordID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	fields, err := s.engine.Lookup(ctx, id)
	if err != nil {
		if MapError(err).Code == ErrCodeRecordNotFound {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, MapError(err)
	}

	content, err := json.MarshalIndent(toRecordOutput(fields), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}

// toRecordOutput splits stored fields into metadata and feature names.
func toRecordOutput(f record.Fields) RecordOutput {
	out := RecordOutput{
		Identifier: f[record.FieldIdentifier],
		DBID:       f[record.FieldDBID],
		Title:      f[record.FieldTitle],
		Tags:       f[record.FieldTags],
		Location:   f[record.FieldLocation],
		Lat:        f[record.FieldLatitude],
		Lng:        f[record.FieldLongitude],
		File:       f[record.FieldFileRef],
	}
	if out.File != "" {
		out.MIMEType = MimeTypeForPath(out.File)
	}
	for name := range f {
		if !slices.Contains(record.MetadataFieldNames, name) {
			out.Features = append(out.Features, name)
		}
	}
	slices.Sort(out.Features)
	return out
}

// extractRecordID extracts the identifier from imagedex://records/{identifier}.
// The identifier may be percent-encoded.
func extractRecordID(uri string) string {
	const prefix = uriScheme + "records/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	raw := strings.TrimPrefix(uri, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return ""
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}
	return id
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Search telemetry since the server started",
			MIMEType:    "application/json",
		},
		s.handleQueryMetricsResource,
	)
}

// handleQueryMetricsResource returns the current query statistics.
func (s *Server) handleQueryMetricsResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	content, err := json.MarshalIndent(toQueryStats(metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      QueryMetricsURI,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}
