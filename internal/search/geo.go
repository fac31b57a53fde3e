package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/imagedex/internal/geo"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
)

// DefaultThresholdKM is the default maximum match distance.
const DefaultThresholdKM = 3.0

// GeoHit is one geo match.
type GeoHit struct {
	Identity   string
	Position   int
	DistanceKM float64
	Fields     record.Fields
}

// GeoResult holds the matches, closest first, and the largest returned
// distance, used by callers as a normalization bound.
type GeoResult struct {
	Hits          []GeoHit
	WorstDistance float64
}

// GeoMatcher finds the records closest to a coordinate.
type GeoMatcher struct {
	ThresholdKM float64
	BoxDegrees  float64
}

// NewGeoMatcher creates a matcher. Non-positive arguments take defaults.
func NewGeoMatcher(thresholdKM, boxDegrees float64) *GeoMatcher {
	if thresholdKM <= 0 {
		thresholdKM = DefaultThresholdKM
	}
	if boxDegrees <= 0 {
		boxDegrees = geo.DefaultBoxDegrees
	}
	return &GeoMatcher{ThresholdKM: thresholdKM, BoxDegrees: boxDegrees}
}

// Match scans every live record of r and returns up to k records within
// the threshold of query's coordinate. A query without a usable coordinate
// returns geo.ErrNoCoordinate.
func (m *GeoMatcher) Match(ctx context.Context, r store.Reader, query *record.Record, k int) (GeoResult, error) {
	center, err := query.Coordinate()
	if err != nil {
		return GeoResult{}, err
	}
	return m.MatchCoordinate(ctx, r, center, k)
}

// MatchCoordinate is Match for a bare coordinate.
func (m *GeoMatcher) MatchCoordinate(ctx context.Context, r store.Reader, center geo.Coordinate, k int) (GeoResult, error) {
	start := time.Now()
	if !center.Valid() {
		return GeoResult{}, geo.ErrNoCoordinate
	}

	box := geo.NewBox(center, m.BoxDegrees, m.ThresholdKM)
	top := NewTopK(k, Ascending)

	n := r.NumRecords()
	var scanned, boxRejected int
	for pos := 0; pos < n; pos++ {
		if pos%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return GeoResult{}, err
			}
		}
		if !r.IsLive(pos) {
			continue
		}

		fields, err := r.GetFields(ctx, pos)
		if err != nil {
			return GeoResult{}, fmt.Errorf("read record %d: %w", pos, err)
		}
		scanned++

		c, err := geo.Parse(fields[record.FieldLatitude], fields[record.FieldLongitude])
		if err != nil {
			continue
		}
		if !box.Contains(c) {
			boxRejected++
			continue
		}

		d := geo.Distance(center, c)
		if d < 0 || d > m.ThresholdKM {
			continue
		}

		top.Offer(Candidate{Score: d, Identity: identityOf(fields), Position: pos})
	}

	result := GeoResult{Hits: make([]GeoHit, 0, top.Len())}
	for _, c := range top.Items() {
		fields, err := r.GetFields(ctx, c.Position)
		if err != nil {
			return GeoResult{}, fmt.Errorf("read record %d: %w", c.Position, err)
		}
		result.Hits = append(result.Hits, GeoHit{
			Identity:   c.Identity,
			Position:   c.Position,
			DistanceKM: c.Score,
			Fields:     fields,
		})
	}
	if worst, ok := top.Worst(); ok {
		result.WorstDistance = worst.Score
	}

	slog.Debug("geo_search_complete",
		slog.Int("scanned", scanned),
		slog.Int("box_rejected", boxRejected),
		slog.Int("hits", len(result.Hits)),
		slog.Float64("worst_km", result.WorstDistance),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

// identityOf returns the stored identifier, deriving it for records
// written without one.
func identityOf(fields record.Fields) string {
	if id := fields[record.FieldIdentifier]; id != "" {
		return id
	}
	return record.FromFields(fields).Identity()
}
