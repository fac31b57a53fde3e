package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Writer states reported in StatusInfo.
const (
	WriterIdle     = "idle"
	WriterIndexing = "indexing"
)

// StatusInfo describes the contents and health of a store.
type StatusInfo struct {
	StorePath    string    `json:"store_path"`
	Records      int       `json:"records"`
	Live         int       `json:"live"`
	Deleted      int       `json:"deleted"`
	Geotagged    int       `json:"geotagged"`
	Descriptors  int       `json:"descriptors"`
	StoreSize    int64     `json:"store_size"`
	LastModified time.Time `json:"last_modified"`
	Writer       string    `json:"writer"` // "idle" or "indexing"
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Store Status: "+info.StorePath))

	_, _ = fmt.Fprintf(r.out, "  Records:      %d\n", info.Records)
	_, _ = fmt.Fprintf(r.out, "  Live:         %d\n", info.Live)
	if info.Deleted > 0 {
		_, _ = fmt.Fprintf(r.out, "  Deleted:      %d\n", info.Deleted)
	}
	_, _ = fmt.Fprintf(r.out, "  Geotagged:    %d\n", info.Geotagged)
	_, _ = fmt.Fprintf(r.out, "  Descriptors:  %d\n", info.Descriptors)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Size:         %s\n", FormatBytes(info.StoreSize))
	if !info.LastModified.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastModified))
	}
	_, _ = fmt.Fprintf(r.out, "  Writer:       %s\n", r.renderWriter(info.Writer))

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderWriter(state string) string {
	switch state {
	case WriterIdle:
		return r.styles.Success.Render(state)
	case WriterIndexing:
		return r.styles.Warning.Render(state)
	default:
		return state
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
