package searcher

import (
	"context"
	"errors"
	"strings"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// ErrNilReader is returned when a searcher is created without a store reader.
var ErrNilReader = errors.New("store reader is required")

// ErrNilTextIndex is returned when creating a TextSearcher without an index.
var ErrNilTextIndex = errors.New("text index is required")

// ErrNilDescriptorIndex is returned when creating a DescriptorSearcher without an index.
var ErrNilDescriptorIndex = errors.New("descriptor index is required")

// ErrNoSearchers is returned when attempting to create a FusionSearcher without any searchers.
var ErrNoSearchers = errors.New("at least one searcher is required")

// ErrNegativeWeight is returned when a searcher is configured with a weight below zero.
var ErrNegativeWeight = errors.New("searcher weight must not be negative")

// ErrNotApplicable is returned when a query carries nothing a searcher can
// use, such as a text query with no text. Fusion treats it as an empty list.
var ErrNotApplicable = errors.New("query not applicable to searcher")

// DefaultWeight is the weight of a searcher configured without one.
const DefaultWeight = 1.0

// Searcher ranks stored records against a query.
//
// Implementations must be thread-safe for concurrent use.
type Searcher interface {
	// Search returns up to limit hits, best first.
	//
	// Returns an empty slice (not nil) if no results match.
	Search(ctx context.Context, query Query, limit int) ([]Hit, error)

	// Weight is the relative trust placed in this searcher's ranking
	// when it is fused with others.
	Weight() float64

	// Name identifies the searcher in logs and fused hit sources.
	Name() string
}

// Hit is one ranked record.
type Hit struct {
	// Identity is the stable record key used for deduplication.
	Identity string

	// Position is the record's store position.
	Position int

	// Score is the searcher's relevance score. Higher is better.
	Score float64

	// Distance is the geo distance in kilometres (geo) or cosine distance
	// (descriptor). Zero for text hits.
	Distance float64

	// Fields holds the stored fields of the record.
	Fields record.Fields

	// Sources lists the searchers that returned the record (fusion only).
	Sources []string
}

// Query is what a caller searches by. Every searcher uses the parts it
// understands and ignores the rest.
type Query struct {
	// Text is matched against title, tags and location.
	Text string

	// Lat and Lng are the query coordinate in decimal degrees.
	Lat string
	Lng string

	// Descriptor is a raw feature vector.
	Descriptor []float32

	// Fields are stored fields of a query record. Descriptor searchers read
	// their field from here when Descriptor is empty.
	Fields record.Fields

	// Exclude drops a record identity from the results, typically the
	// query record itself.
	Exclude string
}

// QueryFromFields builds a query-by-record from a stored record's fields.
// The record itself is excluded from the results.
func QueryFromFields(f record.Fields) Query {
	rec := record.FromFields(f)

	parts := make([]string, 0, 3)
	for _, s := range []string{rec.Title, rec.Tags, rec.Location} {
		if s != "" {
			parts = append(parts, s)
		}
	}

	exclude := f[record.FieldIdentifier]
	if exclude == "" {
		exclude = rec.Identity()
	}

	return Query{
		Text:    strings.Join(parts, " "),
		Lat:     rec.Lat,
		Lng:     rec.Lng,
		Fields:  f.Clone(),
		Exclude: exclude,
	}
}

// Record returns the metadata view of the query.
func (q Query) Record() *record.Record {
	return &record.Record{Title: q.Text, Lat: q.Lat, Lng: q.Lng}
}

// truncateHits returns at most limit hits.
func truncateHits(hits []Hit, limit int) []Hit {
	if limit < 0 {
		limit = 0
	}
	if len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}

// excludeHits drops hits whose identity is id, keeping order.
func excludeHits(hits []Hit, id string) []Hit {
	if id == "" {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Identity != id {
			out = append(out, h)
		}
	}
	return out
}

// resolveWeight applies the default to an unset weight and rejects negatives.
func resolveWeight(w *float64) error {
	if *w < 0 {
		return ErrNegativeWeight
	}
	if *w == 0 {
		*w = DefaultWeight
	}
	return nil
}
