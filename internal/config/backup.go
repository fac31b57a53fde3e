package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of config backups kept per file.
	MaxBackups = 3

	// BackupSuffix separates the config file name from the backup timestamp.
	BackupSuffix = ".bak"

	// backupStamp sorts lexically in creation order.
	backupStamp = "20060102-150405.000000000"
)

// BackupFile copies path to a timestamped sibling and prunes the oldest
// backups beyond MaxBackups. It returns "" and nil when path does not exist.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := path + BackupSuffix + "." + time.Now().Format(backupStamp)
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := pruneBackups(path); err != nil {
		slog.Warn("config_backup_prune_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	return backupPath, nil
}

// ListBackups returns the backups of path, newest first.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(path) + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	slices.Sort(backups)
	slices.Reverse(backups)
	return backups, nil
}

func pruneBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}

	var firstErr error
	for _, old := range backups[MaxBackups:] {
		if err := os.Remove(old); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BackupUserConfig backs up the user config file.
func BackupUserConfig() (string, error) {
	return BackupFile(GetUserConfigPath())
}

// ListUserConfigBackups returns the user config backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	return ListBackups(GetUserConfigPath())
}

// SaveUserConfig writes cfg as the user config, backing up any existing file first.
// It returns the backup path, or "" when there was nothing to back up.
func SaveUserConfig(cfg *Config) (string, error) {
	backup, err := BackupUserConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.WriteYAML(GetUserConfigPath()); err != nil {
		return backup, err
	}
	return backup, nil
}

// RestoreUserConfig replaces the user config with backupPath.
// The current config, if any, is backed up first.
func RestoreUserConfig(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if _, err := BackupUserConfig(); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}

	if err := os.MkdirAll(GetUserConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(GetUserConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}
