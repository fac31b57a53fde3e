package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/imagedex/internal/store"
)

// TextSearcher performs full-text search over title, tags and location.
//
// It wraps a store.TextIndex to provide the Searcher interface.
// Thread-safe for concurrent use.
type TextSearcher struct {
	index  *store.TextIndex
	reader store.Reader
	weight float64
}

// TextOption configures TextSearcher.
type TextOption func(*TextSearcher)

// WithTextIndex sets the bleve-backed text index.
func WithTextIndex(idx *store.TextIndex) TextOption {
	return func(s *TextSearcher) {
		s.index = idx
	}
}

// WithTextReader sets the store used to attach fields to hits.
// Without it hits carry no fields.
func WithTextReader(r store.Reader) TextOption {
	return func(s *TextSearcher) {
		s.reader = r
	}
}

// WithTextWeight sets the fusion weight.
func WithTextWeight(w float64) TextOption {
	return func(s *TextSearcher) {
		s.weight = w
	}
}

// NewTextSearcher creates a text searcher.
//
// Requires WithTextIndex. Returns ErrNilTextIndex if the index is nil.
func NewTextSearcher(opts ...TextOption) (*TextSearcher, error) {
	s := &TextSearcher{}

	for _, opt := range opts {
		opt(s)
	}

	if s.index == nil {
		return nil, ErrNilTextIndex
	}
	if err := resolveWeight(&s.weight); err != nil {
		return nil, err
	}

	return s, nil
}

// Search matches query.Text against the index. An empty text returns
// ErrNotApplicable.
func (s *TextSearcher) Search(ctx context.Context, query Query, limit int) ([]Hit, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrNotApplicable)
	}

	k := limit
	if query.Exclude != "" && k > 0 {
		k++
	}

	textHits, err := s.index.Search(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	hits := make([]Hit, 0, len(textHits))
	for _, th := range textHits {
		h := Hit{
			Identity: th.Identity,
			Position: th.Position,
			Score:    th.Score,
		}
		if s.reader != nil {
			fields, err := s.reader.GetFields(ctx, th.Position)
			if err != nil {
				return nil, fmt.Errorf("read record %d: %w", th.Position, err)
			}
			h.Fields = fields
		}
		hits = append(hits, h)
	}

	return truncateHits(excludeHits(hits, query.Exclude), limit), nil
}

// Weight returns the fusion weight.
func (s *TextSearcher) Weight() float64 {
	return s.weight
}

// Name returns "text".
func (s *TextSearcher) Name() string {
	return "text"
}
