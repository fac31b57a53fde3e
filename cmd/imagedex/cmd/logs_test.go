package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleLog = []string{
	`{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"index_started","workers":4}`,
	`{"time":"2026-03-01T10:00:01Z","level":"WARN","msg":"index_item_failed","item":"img-7"}`,
	`{"time":"2026-03-01T10:00:02Z","level":"ERROR","msg":"index_failed","error":"disk full"}`,
	`{"time":"2026-03-01T10:00:03Z","level":"INFO","msg":"search_started","query":"bridge"}`,
}

func writeLog(t *testing.T) string {
	t.Helper()
	return writeManifest(t, t.TempDir(), "imagedex.log", sampleLog)
}

func TestLogsCmd_Tail(t *testing.T) {
	// Given: a log file with four entries
	path := writeLog(t)

	// When: showing the last two
	stdout, stderr, err := execute(t, "logs", "--file", path, "-n", "2", "--no-color")

	// Then: only the newest entries are printed, oldest first
	require.NoError(t, err)
	assert.Contains(t, stderr, "Log file: "+path)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "index_failed")
	assert.Contains(t, lines[1], "search_started")
}

func TestLogsCmd_Filters(t *testing.T) {
	path := writeLog(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"level", []string{"--level", "warn"}, []string{"index_item_failed", "index_failed"}, []string{"index_started", "search_started"}},
		{"event", []string{"--event", "search_"}, []string{"search_started"}, []string{"index_"}},
		{"pattern", []string{"--filter", "img-\\d"}, []string{"index_item_failed"}, []string{"search_started"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--file", path, "--no-color"}, tt.args...)
			stdout, _, err := execute(t, args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, stdout, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, stdout, nw)
			}
		})
	}
}

func TestLogsCmd_Errors(t *testing.T) {
	path := writeLog(t)

	_, _, err := execute(t, "logs", "--file", path, "--filter", "[")
	assert.ErrorContains(t, err, "invalid filter pattern")

	_, _, err = execute(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorContains(t, err, "log file not found")
}
