package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		StorePath:    "/data/imagedex.db",
		Records:      120,
		Live:         118,
		Deleted:      2,
		Geotagged:    90,
		Descriptors:  110,
		StoreSize:    3 * 1024 * 1024,
		LastModified: time.Now().Add(-2 * time.Hour),
		Writer:       WriterIdle,
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a no-color status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(sampleStatus()))

	// Then: every field is shown
	out := buf.String()
	assert.Contains(t, out, "Store Status: /data/imagedex.db")
	assert.Contains(t, out, "Records:      120")
	assert.Contains(t, out, "Live:         118")
	assert.Contains(t, out, "Deleted:      2")
	assert.Contains(t, out, "Geotagged:    90")
	assert.Contains(t, out, "Descriptors:  110")
	assert.Contains(t, out, "3.0 MB")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Writer:       idle")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_Render_OmitsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(StatusInfo{StorePath: "x", Writer: WriterIndexing}))

	out := buf.String()
	assert.NotContains(t, out, "Deleted")
	assert.NotContains(t, out, "Last indexed")
	assert.Contains(t, out, "indexing")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	require.NoError(t, r.RenderJSON(sampleStatus()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/data/imagedex.db", decoded["store_path"])
	assert.Equal(t, float64(118), decoded["live"])
	assert.Equal(t, "idle", decoded["writer"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTime(now))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-90*time.Second)))
	assert.Equal(t, "5 minutes ago", formatTime(now.Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "1 day ago", formatTime(now.Add(-25*time.Hour)))

	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Format("2006-01-02 15:04"), formatTime(old))
}
