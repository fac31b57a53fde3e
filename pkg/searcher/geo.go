package searcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/imagedex/internal/geo"
	"github.com/Aman-CERP/imagedex/internal/search"
	"github.com/Aman-CERP/imagedex/internal/store"
)

// GeoSearcher ranks records by great-circle distance to the query coordinate.
//
// Thread-safe for concurrent use.
type GeoSearcher struct {
	reader  store.Reader
	matcher *search.GeoMatcher
	weight  float64
}

// GeoOption configures GeoSearcher.
type GeoOption func(*GeoSearcher)

// WithGeoReader sets the store the searcher scans.
func WithGeoReader(r store.Reader) GeoOption {
	return func(s *GeoSearcher) {
		s.reader = r
	}
}

// WithGeoThreshold sets the maximum match distance in kilometres and the
// minimum pre-filter box half-width in degrees.
func WithGeoThreshold(thresholdKM, boxDegrees float64) GeoOption {
	return func(s *GeoSearcher) {
		s.matcher = search.NewGeoMatcher(thresholdKM, boxDegrees)
	}
}

// WithGeoWeight sets the fusion weight.
func WithGeoWeight(w float64) GeoOption {
	return func(s *GeoSearcher) {
		s.weight = w
	}
}

// NewGeoSearcher creates a geo searcher.
//
// Requires WithGeoReader. The threshold defaults to search.DefaultThresholdKM.
func NewGeoSearcher(opts ...GeoOption) (*GeoSearcher, error) {
	s := &GeoSearcher{matcher: search.NewGeoMatcher(0, 0)}

	for _, opt := range opts {
		opt(s)
	}

	if s.reader == nil {
		return nil, ErrNilReader
	}
	if err := resolveWeight(&s.weight); err != nil {
		return nil, err
	}

	return s, nil
}

// Search returns the records closest to the query coordinate, closest
// first. Scores fall linearly from 1 at the query point to 0 at the
// farthest match. A query without a usable coordinate returns ErrNotApplicable.
func (s *GeoSearcher) Search(ctx context.Context, query Query, limit int) ([]Hit, error) {
	center, err := geo.Parse(query.Lat, query.Lng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotApplicable, err)
	}

	k := limit
	if query.Exclude != "" && k > 0 {
		k++
	}

	res, err := s.matcher.MatchCoordinate(ctx, s.reader, center, k)
	if err != nil {
		if errors.Is(err, geo.ErrNoCoordinate) {
			return nil, fmt.Errorf("%w: %w", ErrNotApplicable, err)
		}
		return nil, fmt.Errorf("geo search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		score := 1.0
		if res.WorstDistance > 0 {
			score = 1 - h.DistanceKM/res.WorstDistance
		}
		hits = append(hits, Hit{
			Identity: h.Identity,
			Position: h.Position,
			Score:    score,
			Distance: h.DistanceKM,
			Fields:   h.Fields,
		})
	}

	return truncateHits(excludeHits(hits, query.Exclude), limit), nil
}

// Weight returns the fusion weight.
func (s *GeoSearcher) Weight() float64 {
	return s.weight
}

// Name returns "geo".
func (s *GeoSearcher) Name() string {
	return "geo"
}

// ThresholdKM returns the maximum match distance.
func (s *GeoSearcher) ThresholdKM() float64 {
	return s.matcher.ThresholdKM
}
