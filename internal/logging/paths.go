package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.imagedex/logs, or a temp directory when the
// home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".imagedex", "logs")
	}
	return filepath.Join(home, ".imagedex", "logs")
}

// DefaultLogPath returns the live log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "imagedex.log")
}

// FindLogFile returns explicit if set, otherwise the default log path.
// It fails when the chosen file does not exist.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		if explicit != "" {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return "", fmt.Errorf("no log file at %s; run a command with --debug first", path)
	}
	return path, nil
}
