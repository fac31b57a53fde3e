package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/imagedex/pkg/version"
)

// MarkerFile records the last passing preflight run in the data directory.
const MarkerFile = ".preflight-passed"

// Marker is the content of MarkerFile.
type Marker struct {
	Version  string    `yaml:"version"`
	PassedAt time.Time `yaml:"passed_at"`
	Checks   []string  `yaml:"checks,omitempty"`
}

// NeedsCheck reports whether an index run in dataDir should run the
// preflight checks first. A missing or unreadable marker, or one written
// by another imagedex version, needs a check.
func NeedsCheck(dataDir string) bool {
	m, err := ReadMarker(dataDir)
	if err != nil {
		return true
	}
	return m.Version != version.Version
}

// ReadMarker loads the marker from dataDir.
func ReadMarker(dataDir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse preflight marker: %w", err)
	}
	if m.PassedAt.IsZero() {
		return nil, fmt.Errorf("preflight marker has no timestamp")
	}
	return &m, nil
}

// MarkPassed writes the marker for the checks in results.
func MarkPassed(dataDir string, results ...CheckResult) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	m := Marker{
		Version:  version.Version,
		PassedAt: time.Now().UTC().Truncate(time.Second),
	}
	for _, r := range results {
		m.Checks = append(m.Checks, r.Name)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode preflight marker: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0644)
}

// ClearMarker removes the marker so the next index run checks again.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns the time since the last passing run, or zero.
func MarkerAge(dataDir string) time.Duration {
	m, err := ReadMarker(dataDir)
	if err != nil {
		return 0
	}
	return time.Since(m.PassedAt)
}
