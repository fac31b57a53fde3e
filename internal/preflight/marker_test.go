package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/imagedex/pkg/version"
)

func TestNeedsCheck_NoMarker(t *testing.T) {
	assert.True(t, NeedsCheck(t.TempDir()))
}

func TestMarkPassed_RecordsChecks(t *testing.T) {
	// Given: a data directory that does not exist yet
	dataDir := filepath.Join(t.TempDir(), "project", ".imagedex")

	// When: marking a passing run
	err := MarkPassed(dataDir,
		CheckResult{Name: "disk_space", Status: StatusPass},
		CheckResult{Name: "source", Status: StatusPass})

	// Then: the marker is written with this version and the check names
	require.NoError(t, err)
	assert.False(t, NeedsCheck(dataDir))

	m, err := ReadMarker(dataDir)
	require.NoError(t, err)
	assert.Equal(t, version.Version, m.Version)
	assert.Equal(t, []string{"disk_space", "source"}, m.Checks)
	assert.WithinDuration(t, time.Now(), m.PassedAt, time.Minute)
}

func TestNeedsCheck_OtherVersion(t *testing.T) {
	// Given: a marker from another release
	dataDir := t.TempDir()
	content := "version: 0.0.1-old\npassed_at: 2026-01-02T03:04:05Z\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0644))

	// Then: the checks run again
	assert.True(t, NeedsCheck(dataDir))
}

func TestNeedsCheck_CorruptMarker(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte("{{not yaml"), 0644))

	assert.True(t, NeedsCheck(dataDir))
	assert.Zero(t, MarkerAge(dataDir))
}

func TestClearMarker(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, MarkPassed(dataDir))

	require.NoError(t, ClearMarker(dataDir))
	assert.NoFileExists(t, filepath.Join(dataDir, MarkerFile))
	assert.True(t, NeedsCheck(dataDir))

	// Removing again is not an error
	assert.NoError(t, ClearMarker(dataDir))
}

func TestMarkerAge(t *testing.T) {
	dataDir := t.TempDir()
	assert.Zero(t, MarkerAge(dataDir))

	require.NoError(t, MarkPassed(dataDir))
	age := MarkerAge(dataDir)
	assert.GreaterOrEqual(t, age, time.Duration(0))
	assert.Less(t, age, time.Minute)
}
