package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/ui"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// OpenFunc opens a fresh Engine.
type OpenFunc func(ctx context.Context) (*Engine, error)

// Reloader serves searches from the latest opened Engine. Reload swaps in
// a new Engine without interrupting searches already running on the old one.
type Reloader struct {
	open OpenFunc

	mu      sync.RWMutex
	current *Engine
	closed  bool
}

// NewReloader opens the first Engine.
func NewReloader(ctx context.Context, open OpenFunc) (*Reloader, error) {
	e, err := open(ctx)
	if err != nil {
		return nil, err
	}
	return &Reloader{open: open, current: e}, nil
}

// Reload opens a new Engine and replaces the current one. On failure the
// current Engine keeps serving.
func (r *Reloader) Reload(ctx context.Context) error {
	next, err := r.open(ctx)
	if err != nil {
		slog.Warn("engine_reload_failed", slog.String("error", err.Error()))
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return next.Close()
	}
	prev := r.current
	r.current = next
	r.mu.Unlock()

	// The write lock waited for in-flight searches on prev.
	if err := prev.Close(); err != nil {
		slog.Warn("engine_close_failed", slog.String("error", err.Error()))
	}
	slog.Info("engine_reloaded", slog.Int("records", next.store.NumRecords()))
	return nil
}

// Search runs Engine.Search on the current Engine.
func (r *Reloader) Search(ctx context.Context, query searcher.Query, limit int) ([]searcher.Hit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Search(ctx, query, limit)
}

// SearchLike runs Engine.SearchLike on the current Engine.
func (r *Reloader) SearchLike(ctx context.Context, identifier string, limit int) ([]searcher.Hit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.SearchLike(ctx, identifier, limit)
}

// SearchNearby runs Engine.SearchNearby on the current Engine.
func (r *Reloader) SearchNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]searcher.Hit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.SearchNearby(ctx, lat, lng, radiusKM, limit)
}

// Lookup runs Engine.Lookup on the current Engine.
func (r *Reloader) Lookup(ctx context.Context, identifier string) (record.Fields, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Lookup(ctx, identifier)
}

// Status runs Engine.Status on the current Engine.
func (r *Reloader) Status(ctx context.Context) (ui.StatusInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Status(ctx)
}

// Searchers returns the searcher names of the current Engine.
func (r *Reloader) Searchers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Searchers()
}

// Close closes the current Engine. Later reloads close what they open.
func (r *Reloader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.current.Close()
}
