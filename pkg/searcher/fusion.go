package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/search"
)

// MinFetchLimit is the smallest number of hits requested from each
// constituent searcher. Fusion needs more candidates than it returns.
const MinFetchLimit = 20

// FusionSearcher combines several weighted searchers into one consensus
// ranking. A record at 0-based rank p of a searcher with weight w earns
// 3/(p+1)*w; contributions are summed per record identity.
//
// Constituents run in parallel. One that fails, has nothing to go on, or
// whose circuit breaker is open contributes nothing; the fused result is
// identical regardless of the order in which constituents finish.
//
// Thread-safe for concurrent use.
type FusionSearcher struct {
	searchers []Searcher
	breakers  []*apperrors.Breaker
	weight    float64

	maxFailures  int
	resetTimeout time.Duration
}

// FusionOption configures FusionSearcher.
type FusionOption func(*FusionSearcher)

// WithSearchers adds constituent searchers. Nil searchers are ignored.
func WithSearchers(searchers ...Searcher) FusionOption {
	return func(f *FusionSearcher) {
		for _, s := range searchers {
			if s != nil {
				f.searchers = append(f.searchers, s)
			}
		}
	}
}

// WithFusionWeight sets the weight of the fused searcher when it is itself
// nested in another fusion.
func WithFusionWeight(w float64) FusionOption {
	return func(f *FusionSearcher) {
		f.weight = w
	}
}

// WithBreaker configures the per-constituent circuit breakers.
func WithBreaker(maxFailures int, resetTimeout time.Duration) FusionOption {
	return func(f *FusionSearcher) {
		f.maxFailures = maxFailures
		f.resetTimeout = resetTimeout
	}
}

// NewFusionSearcher creates a new fusion searcher.
//
// At least one searcher must be provided.
// Returns ErrNoSearchers if no searchers are configured.
func NewFusionSearcher(opts ...FusionOption) (*FusionSearcher, error) {
	f := &FusionSearcher{
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(f)
	}

	if len(f.searchers) == 0 {
		return nil, ErrNoSearchers
	}
	if err := resolveWeight(&f.weight); err != nil {
		return nil, err
	}
	for _, s := range f.searchers {
		if s.Weight() < 0 {
			return nil, fmt.Errorf("%s: %w", s.Name(), ErrNegativeWeight)
		}
	}

	f.breakers = make([]*apperrors.Breaker, len(f.searchers))
	for i, s := range f.searchers {
		f.breakers[i] = apperrors.NewBreaker(s.Name(),
			apperrors.WithMaxFailures(f.maxFailures),
			apperrors.WithResetTimeout(f.resetTimeout))
	}

	return f, nil
}

// Search runs every constituent and fuses their rankings. It fails only
// when ctx is done.
func (f *FusionSearcher) Search(ctx context.Context, query Query, limit int) ([]Hit, error) {
	start := time.Now()
	if limit <= 0 {
		return []Hit{}, nil
	}

	// Fetch more results for fusion (2x limit)
	fetchLimit := limit * 2
	if fetchLimit < MinFetchLimit {
		fetchLimit = MinFetchLimit
	}

	results := make([][]Hit, len(f.searchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range f.searchers {
		g.Go(func() error {
			results[i] = f.runConstituent(gctx, i, s, query, fetchLimit)
			return nil // Don't fail the group, a constituent contributes nothing instead
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lists := make([]search.List, len(f.searchers))
	fields := make(map[string]Hit)
	sources := make(map[string][]string)
	for i, s := range f.searchers {
		entries := make([]search.Ranked, len(results[i]))
		for rank, h := range results[i] {
			entries[rank] = search.Ranked{Identity: h.Identity, Position: h.Position}
			if h.Identity == "" {
				continue
			}
			if prev, ok := fields[h.Identity]; !ok || newerHit(h, prev) {
				fields[h.Identity] = h
			}
			if !slices.Contains(sources[h.Identity], s.Name()) {
				sources[h.Identity] = append(sources[h.Identity], s.Name())
			}
		}
		lists[i] = search.List{Name: s.Name(), Weight: s.Weight(), Entries: entries}
	}

	fused := search.Fuse(lists, limit+1)
	hits := make([]Hit, 0, len(fused.Hits))
	for _, fh := range fused.Hits {
		hits = append(hits, Hit{
			Identity: fh.Identity,
			Position: fh.Position,
			Score:    fh.Score,
			Fields:   fields[fh.Identity].Fields,
			Sources:  sources[fh.Identity],
		})
	}
	hits = truncateHits(excludeHits(hits, query.Exclude), limit)

	slog.Debug("fusion_search_complete",
		slog.Int("searchers", len(f.searchers)),
		slog.Int("hits", len(hits)),
		slog.Duration("elapsed", time.Since(start)))

	return hits, nil
}

// newerHit reports whether h should represent its identity over prev: the
// higher store position wins, matching search.Fuse, and on the same
// position a hit carrying fields wins.
func newerHit(h, prev Hit) bool {
	if h.Position != prev.Position {
		return h.Position > prev.Position
	}
	return prev.Fields == nil && h.Fields != nil
}

// runConstituent searches one constituent through its breaker. Failures
// are logged and yield an empty list.
func (f *FusionSearcher) runConstituent(ctx context.Context, i int, s Searcher, query Query, limit int) []Hit {
	var hits []Hit
	var notApplicable error

	err := f.breakers[i].Execute(func() error {
		var err error
		hits, err = s.Search(ctx, query, limit)
		if errors.Is(err, ErrNotApplicable) {
			notApplicable = err
			return nil
		}
		return err
	})

	switch {
	case notApplicable != nil:
		slog.Debug("searcher_not_applicable",
			slog.String("searcher", s.Name()),
			slog.String("reason", notApplicable.Error()))
		return nil
	case errors.Is(err, apperrors.ErrCircuitOpen):
		slog.Warn("searcher_skipped",
			slog.String("searcher", s.Name()),
			slog.String("reason", "circuit open"))
		return nil
	case err != nil:
		if ctx.Err() == nil {
			slog.Warn("searcher_failed",
				slog.String("searcher", s.Name()),
				slog.String("error", err.Error()))
		}
		return nil
	}
	return hits
}

// Weight returns the weight of the fused ranking.
func (f *FusionSearcher) Weight() float64 {
	return f.weight
}

// Name returns "fusion".
func (f *FusionSearcher) Name() string {
	return "fusion"
}

// Searchers returns the constituent searchers.
func (f *FusionSearcher) Searchers() []Searcher {
	out := make([]Searcher, len(f.searchers))
	copy(out, f.searchers)
	return out
}
