package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/telemetry"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestExtractRecordID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{"plain identifier", "imagedex://records/empire", "empire"},
		{"percent encoded", "imagedex://records/img%2042", "img 42"},
		{"wrong scheme", "file://records/empire", ""},
		{"missing identifier", "imagedex://records/", ""},
		{"nested path", "imagedex://records/a/b", ""},
		{"bad escape", "imagedex://records/%zz", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractRecordID(tt.uri))
		})
	}
}

func TestRecordResource(t *testing.T) {
	// Given: an engine holding the Empire State Building with a descriptor
	eng := &MockSearchEngine{
		LookupFn: func(_ context.Context, id string) (record.Fields, error) {
			return record.Fields{
				record.FieldIdentifier: id,
				record.FieldTitle:      "Empire State Building",
				record.FieldFileRef:    "nyc/empire.png",
				"color_histogram":      "AAAA",
			}, nil
		},
	}
	s := newTestServer(t, eng)

	// When: reading its resource
	res, err := s.handleRecordResource(context.Background(), readRequest("imagedex://records/empire"))
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	// Then: metadata is returned and feature values are omitted
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	var out RecordOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, "empire", out.Identifier)
	assert.Equal(t, "image/png", out.MIMEType)
	assert.Equal(t, []string{"color_histogram"}, out.Features)
	assert.NotContains(t, res.Contents[0].Text, "AAAA")
}

func TestRecordResource_NotFound(t *testing.T) {
	eng := &MockSearchEngine{
		LookupFn: func(context.Context, string) (record.Fields, error) {
			return nil, apperrors.New(apperrors.ErrCodeRecordNotFound, "no record", store.ErrNotFound)
		},
	}
	s := newTestServer(t, eng)

	_, err := s.handleRecordResource(context.Background(), readRequest("imagedex://records/missing"))
	assert.Error(t, err)

	_, err = s.handleRecordResource(context.Background(), readRequest("imagedex://other/x"))
	assert.Error(t, err)
}

func TestRecordResource_StoreError(t *testing.T) {
	eng := &MockSearchEngine{
		LookupFn: func(context.Context, string) (record.Fields, error) {
			return nil, apperrors.StoreError("lookup failed", errors.New("disk"))
		},
	}
	s := newTestServer(t, eng)

	_, err := s.handleRecordResource(context.Background(), readRequest("imagedex://records/x"))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeStoreUnavailable, mcpErr.Code)
}

func TestQueryMetricsResource(t *testing.T) {
	s := newTestServer(t, &MockSearchEngine{})

	// Without metrics the resource is unavailable
	_, err := s.handleQueryMetricsResource(context.Background(), readRequest(QueryMetricsURI))
	assert.Error(t, err)

	// Given: two recorded searches
	m := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	m.Record(telemetry.QueryEvent{Query: "night bridge", Kind: telemetry.QueryKindText, HitCount: 2})
	m.Record(telemetry.QueryEvent{Query: "bridge", Kind: telemetry.QueryKindText})
	s.SetMetrics(m)

	// When: reading the resource
	res, err := s.handleQueryMetricsResource(context.Background(), readRequest(QueryMetricsURI))
	require.NoError(t, err)

	// Then: totals and top terms are reported
	var stats QueryStats
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &stats))
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.InDelta(t, 50.0, stats.ZeroHitPct, 0.001)
	require.NotEmpty(t, stats.TopTerms)
	assert.Equal(t, TermCount{Term: "bridge", Count: 2}, stats.TopTerms[0])
	assert.Equal(t, []string{"bridge"}, stats.ZeroHitQueries)
}
