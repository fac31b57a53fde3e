package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize bounds a single image payload (64MB).
const DefaultMaxFileSize int64 = 64 * 1024 * 1024

// ErrNoFileRef is returned when a record has no file reference to load.
var ErrNoFileRef = errors.New("record has no file reference")

// ErrFileTooLarge is returned when a payload exceeds the loader's size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Loader reads raw image bytes for records.
type Loader struct {
	// BaseDir resolves relative file references. Empty means the working directory.
	BaseDir string

	// MaxFileSize is the largest payload accepted. Zero uses DefaultMaxFileSize.
	MaxFileSize int64
}

// Path returns the absolute or BaseDir-relative path for r.
func (l *Loader) Path(r *Record) string {
	if filepath.IsAbs(r.FileRef) || l.BaseDir == "" {
		return r.FileRef
	}
	return filepath.Join(l.BaseDir, r.FileRef)
}

// Load reads the record's file and attaches it as the payload.
func (l *Loader) Load(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.FileRef == "" {
		return ErrNoFileRef
	}

	path := l.Path(r)

	// Lstat so symlinks are not followed out of the image directory.
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}

	limit := l.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if info.Size() > limit {
		return fmt.Errorf("%s is %d bytes (limit %d): %w", path, info.Size(), limit, ErrFileTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	buf, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if int64(len(buf)) > limit {
		return fmt.Errorf("%s grew past %d bytes: %w", path, limit, ErrFileTooLarge)
	}

	r.Payload = buf
	return nil
}
