package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	storePath string
	warnings  int
	errors    int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:       cfg.Output,
		storePath: cfg.StorePath,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storePath != "" {
		_, _ = fmt.Fprintf(r.out, "Indexing into %s\n", r.storePath)
	}
	return nil
}

// UpdateProgress implements Renderer.
//
// Format: [STAGE] processed=N skipped=N failed=N queue=N elapsed=D per_item=D
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "[%s] processed=%d skipped=%d failed=%d queue=%d elapsed=%s per_item=%s",
		event.Stage.Icon(), event.Processed, event.Skipped, event.Failed, event.QueueDepth,
		event.Elapsed.Round(100*time.Millisecond), formatPerItem(event.PerItem))
	if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, " - %s", event.Message)
	}
	_, _ = fmt.Fprintln(r.out)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}

	if event.Item != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Item, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d processed, %d indexed in %s (%s per item)",
		stats.Processed, stats.Indexed, stats.Duration.Round(100*time.Millisecond), formatPerItem(stats.PerItem))

	if stats.Skipped > 0 || stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d skipped, %d failed)", stats.Skipped, stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.MaxDepth > 0 {
		_, _ = fmt.Fprintf(r.out, "Peak queue depth: %d\n", stats.MaxDepth)
	}
	if stats.StorePath != "" {
		_, _ = fmt.Fprintf(r.out, "Store: %s\n", stats.StorePath)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// formatPerItem renders a per-item latency in milliseconds.
func formatPerItem(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

var _ Renderer = (*PlainRenderer)(nil)
