package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a StoreWatcher.
type Options struct {
	// Debounce is the quiet period after the last write before a commit
	// is reported.
	Debounce time.Duration

	// Busy, when set, postpones the report while it returns true, for
	// example while a writer still holds the store lock.
	Busy func() bool
}

// DefaultOptions returns a 500ms debounce and no busy check.
func DefaultOptions() Options {
	return Options{Debounce: 500 * time.Millisecond}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultOptions().Debounce
	}
	return o
}

// StoreWatcher reports writes to one store file.
type StoreWatcher struct {
	path string
	base string
	opts Options
	fs   *fsnotify.Watcher
}

// NewStoreWatcher watches the directory of storePath. The directory must exist.
func NewStoreWatcher(storePath string, opts Options) (*StoreWatcher, error) {
	abs, err := filepath.Abs(storePath)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &StoreWatcher{
		path: abs,
		base: filepath.Base(abs),
		opts: opts.WithDefaults(),
		fs:   fsw,
	}, nil
}

// Run calls onCommit after each quiet period following store writes,
// until ctx is done. It closes the watcher before returning.
func (w *StoreWatcher) Run(ctx context.Context, onCommit func(context.Context)) error {
	defer func() { _ = w.fs.Close() }()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.opts.Debounce)
		} else {
			timer.Reset(w.opts.Debounce)
		}
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				arm()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("store_watch_error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			if w.opts.Busy != nil && w.opts.Busy() {
				arm()
				continue
			}
			slog.Debug("store_commit_detected", slog.String("store", w.path))
			onCommit(ctx)
		}
	}
}

// relevant reports whether event changes committed data: writes or
// creates of the database file, its WAL or its rollback journal. The
// shared-memory index and the lock file change on reads and are ignored.
func (w *StoreWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Base(event.Name) {
	case w.base, w.base + "-wal", w.base + "-journal":
		return true
	default:
		return false
	}
}
