package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/imagedex/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target describes what an index run will touch. Empty fields skip
// their checks.
type Target struct {
	DataDir    string
	StorePath  string
	SourcePath string
	ImageDir   string
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check that applies to t.
func (c *Checker) RunAll(_ context.Context, t Target) []CheckResult {
	var results []CheckResult

	if t.DataDir != "" {
		results = append(results, c.CheckDiskSpace(t.DataDir))
		results = append(results, c.CheckWritePermissions(t.DataDir))
	}
	results = append(results, c.CheckFileDescriptors())
	if t.SourcePath != "" {
		results = append(results, c.CheckSource(t.SourcePath))
	}
	if t.ImageDir != "" {
		results = append(results, c.CheckImageDir(t.ImageDir))
	}
	if t.StorePath != "" {
		results = append(results, c.CheckWriterLock(t.StorePath))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "imagedex System Check")
	_, _ = fmt.Fprintln(c.output, "=====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckWritePermissions creates dir if needed and writes a test file in it.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	testFile := filepath.Join(dir, ".imagedex-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckSource checks that the record source can be opened for reading.
func (c *Checker) CheckSource(path string) CheckResult {
	result := CheckResult{
		Name:     "source",
		Required: true,
	}

	f, err := os.Open(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s", path)
		result.Details = err.Error()
		return result
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a file", path)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", filepath.Base(path), formatBytes(uint64(info.Size())))
	return result
}

// CheckImageDir warns when the directory image references resolve
// against is missing. Records with absolute paths still load.
func (c *Checker) CheckImageDir(dir string) CheckResult {
	result := CheckResult{
		Name:     "image_dir",
		Required: false,
	}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found", dir)
		result.Details = "Set paths.image_dir or pass --images-dir"
	case !info.IsDir():
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not a directory", dir)
	default:
		result.Status = StatusPass
		result.Message = dir
	}
	return result
}

// CheckWriterLock fails when another process is indexing into storePath.
func (c *Checker) CheckWriterLock(storePath string) CheckResult {
	result := CheckResult{
		Name:     "writer_lock",
		Required: true,
	}

	active, err := store.WriterActive(storePath)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot check writer lock: %v", err)
	case active:
		result.Status = StatusFail
		result.Message = "another index run holds the store"
		result.Details = "Wait for it to finish, or check 'imagedex status'"
	default:
		result.Status = StatusPass
		result.Message = "free"
	}
	return result
}
