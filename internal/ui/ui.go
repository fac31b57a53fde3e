// Package ui provides terminal progress display for indexing runs.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a pipeline phase.
type Stage int

const (
	// StageLoading is the phase where the producer is still reading input.
	StageLoading Stage = iota
	// StageDraining is the phase after input ends while workers empty the queue.
	StageDraining
	// StageCommitting is the final commit of the store.
	StageCommitting
	// StageComplete indicates indexing is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageDraining:
		return "Draining"
	case StageCommitting:
		return "Committing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageDraining:
		return "DRAIN"
	case StageCommitting:
		return "COMMIT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one monitor report.
type ProgressEvent struct {
	Stage      Stage
	Processed  int
	Skipped    int
	Failed     int
	QueueDepth int
	Elapsed    time.Duration
	PerItem    time.Duration
	Message    string
}

// ErrorEvent represents a per-item error during processing.
type ErrorEvent struct {
	Item   string
	Err    error
	IsWarn bool
}

// CompletionStats contains final indexing statistics.
type CompletionStats struct {
	Processed int
	Skipped   int
	Failed    int
	Indexed   int
	Duration  time.Duration
	PerItem   time.Duration
	MaxDepth  int
	StorePath string
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	StorePath  string // Store path to display in header

	// QueueCapacity scales the queue fill bar. Zero hides the bar.
	QueueCapacity int
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithStorePath sets the store path shown in the header.
func WithStorePath(path string) ConfigOption {
	return func(c *Config) {
		c.StorePath = path
	}
}

// WithQueueCapacity sets the work queue capacity shown by the fill bar.
func WithQueueCapacity(n int) ConfigOption {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --plain is specified.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// nopRenderer discards every event.
type nopRenderer struct{}

// Discard is a Renderer that drops all output.
var Discard Renderer = nopRenderer{}

func (nopRenderer) Start(context.Context) error { return nil }
func (nopRenderer) UpdateProgress(ProgressEvent) {}
func (nopRenderer) AddError(ErrorEvent) {}
func (nopRenderer) Complete(CompletionStats) {}
func (nopRenderer) Stop() error { return nil }
