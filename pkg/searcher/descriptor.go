package searcher

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/store"
)

// DescriptorSearcher ranks records by cosine similarity of a feature
// descriptor, such as the color histogram.
//
// It wraps a store.DescriptorIndex to provide the Searcher interface.
// Thread-safe for concurrent use.
type DescriptorSearcher struct {
	index  *store.DescriptorIndex
	reader store.Reader
	weight float64
}

// DescriptorOption configures DescriptorSearcher.
type DescriptorOption func(*DescriptorSearcher)

// WithDescriptorIndex sets the HNSW descriptor index.
func WithDescriptorIndex(idx *store.DescriptorIndex) DescriptorOption {
	return func(s *DescriptorSearcher) {
		s.index = idx
	}
}

// WithDescriptorReader sets the store used to attach fields to hits.
func WithDescriptorReader(r store.Reader) DescriptorOption {
	return func(s *DescriptorSearcher) {
		s.reader = r
	}
}

// WithDescriptorWeight sets the fusion weight.
func WithDescriptorWeight(w float64) DescriptorOption {
	return func(s *DescriptorSearcher) {
		s.weight = w
	}
}

// NewDescriptorSearcher creates a descriptor searcher.
//
// Requires WithDescriptorIndex. Returns ErrNilDescriptorIndex if the index is nil.
func NewDescriptorSearcher(opts ...DescriptorOption) (*DescriptorSearcher, error) {
	s := &DescriptorSearcher{}

	for _, opt := range opts {
		opt(s)
	}

	if s.index == nil {
		return nil, ErrNilDescriptorIndex
	}
	if err := resolveWeight(&s.weight); err != nil {
		return nil, err
	}

	return s, nil
}

// Search returns the nearest descriptors to the query's. The vector is
// query.Descriptor or, failing that, the indexed field of query.Fields.
// A query with neither returns ErrNotApplicable.
func (s *DescriptorSearcher) Search(ctx context.Context, query Query, limit int) ([]Hit, error) {
	vec, err := s.queryVector(query)
	if err != nil {
		return nil, err
	}

	k := limit
	if query.Exclude != "" && k > 0 {
		k++
	}

	found, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("descriptor search failed: %w", err)
	}

	hits := make([]Hit, 0, len(found))
	for _, d := range found {
		h := Hit{
			Identity: d.Identity,
			Position: d.Position,
			Score:    float64(d.Score),
			Distance: float64(d.Distance),
		}
		if s.reader != nil {
			fields, err := s.reader.GetFields(ctx, d.Position)
			if err != nil {
				return nil, fmt.Errorf("read record %d: %w", d.Position, err)
			}
			h.Fields = fields
		}
		hits = append(hits, h)
	}

	return truncateHits(excludeHits(hits, query.Exclude), limit), nil
}

func (s *DescriptorSearcher) queryVector(query Query) ([]float32, error) {
	if len(query.Descriptor) > 0 {
		return query.Descriptor, nil
	}
	raw := query.Fields[s.index.Field()]
	if raw == "" {
		return nil, fmt.Errorf("%w: no %s descriptor", ErrNotApplicable, s.index.Field())
	}
	vec, err := feature.DecodeVector(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotApplicable, err)
	}
	return vec, nil
}

// Weight returns the fusion weight.
func (s *DescriptorSearcher) Weight() float64 {
	return s.weight
}

// Name returns the descriptor field name.
func (s *DescriptorSearcher) Name() string {
	return s.index.Field()
}
