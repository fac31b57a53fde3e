package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// ErrDimensionMismatch is returned when a query vector has the wrong length.
var ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

// VectorDecoder parses a stored descriptor field.
type VectorDecoder func(string) ([]float32, error)

// DescriptorHit is one nearest-neighbour match.
type DescriptorHit struct {
	Identity string
	Position int
	Distance float32
	Score    float32
}

// DescriptorIndex is an in-memory HNSW graph over one descriptor field,
// keyed by record identity. Vectors are normalized and compared by cosine
// distance.
type DescriptorIndex struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[string]
	field     string
	dims      int
	positions map[string]int
}

// Graph defaults for BuildDescriptorIndex.
const (
	DefaultHNSWM        = 16
	DefaultHNSWEfSearch = 20
)

// DescriptorOption tunes the HNSW graph built by BuildDescriptorIndex.
type DescriptorOption func(*hnsw.Graph[string])

// WithGraphM sets the maximum neighbours per node. Values below 2 are ignored.
func WithGraphM(m int) DescriptorOption {
	return func(g *hnsw.Graph[string]) {
		if m >= 2 {
			g.M = m
		}
	}
}

// WithEfSearch sets the candidate list size used while searching.
func WithEfSearch(ef int) DescriptorOption {
	return func(g *hnsw.Graph[string]) {
		if ef > 0 {
			g.EfSearch = ef
		}
	}
}

// BuildDescriptorIndex indexes the field descriptor of every live record of r.
// Records without the field, or whose vector length differs from the first
// one seen, are skipped.
func BuildDescriptorIndex(ctx context.Context, r Reader, field string, decode VectorDecoder, opts ...DescriptorOption) (*DescriptorIndex, error) {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = DefaultHNSWM
	graph.EfSearch = DefaultHNSWEfSearch
	graph.Ml = 0.25
	for _, opt := range opts {
		opt(graph)
	}

	d := &DescriptorIndex{
		graph:     graph,
		field:     field,
		positions: make(map[string]int),
	}

	vectors := make(map[string][]float32)
	skipped := 0
	for _, pos := range Positions(r) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := r.GetFields(ctx, pos)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", pos, err)
		}

		raw, ok := fields[field]
		id := fields[record.FieldIdentifier]
		if !ok || raw == "" || id == "" {
			continue
		}

		vec, err := decode(raw)
		if err != nil || len(vec) == 0 {
			skipped++
			continue
		}
		if d.dims == 0 {
			d.dims = len(vec)
		}
		if len(vec) != d.dims {
			skipped++
			continue
		}

		if !normalizeVectorInPlace(vec) {
			skipped++
			continue
		}
		vectors[id] = vec
		d.positions[id] = pos
	}

	nodes := make([]hnsw.Node[string], 0, len(vectors))
	for id, vec := range vectors {
		nodes = append(nodes, hnsw.MakeNode(id, vec))
	}
	if len(nodes) > 0 {
		graph.Add(nodes...)
	}

	slog.Debug("descriptor_index_built",
		slog.String("field", field),
		slog.Int("vectors", len(nodes)),
		slog.Int("dimensions", d.dims),
		slog.Int("skipped", skipped))

	return d, nil
}

// Search returns up to k nearest neighbours of query, closest first.
func (d *DescriptorIndex) Search(ctx context.Context, query []float32, k int) ([]DescriptorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if k <= 0 || d.graph.Len() == 0 {
		return []DescriptorHit{}, nil
	}
	if len(query) != d.dims {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, d.dims, len(query))
	}

	q := make([]float32, len(query))
	copy(q, query)
	if !normalizeVectorInPlace(q) {
		return []DescriptorHit{}, nil
	}

	nodes := d.graph.Search(q, k)
	hits := make([]DescriptorHit, 0, len(nodes))
	for _, node := range nodes {
		pos, ok := d.positions[node.Key]
		if !ok {
			continue
		}
		distance := d.graph.Distance(q, node.Value)
		hits = append(hits, DescriptorHit{
			Identity: node.Key,
			Position: pos,
			Distance: distance,
			Score:    distanceToScore(distance),
		})
	}
	return hits, nil
}

// Field returns the indexed descriptor field name.
func (d *DescriptorIndex) Field() string {
	return d.field
}

// Dimensions returns the vector length, or 0 when nothing was indexed.
func (d *DescriptorIndex) Dimensions() int {
	return d.dims
}

// Len returns the number of indexed vectors.
func (d *DescriptorIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph.Len()
}

// normalizeVectorInPlace scales v to unit length. It reports false for a zero vector.
func normalizeVectorInPlace(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return true
}

// distanceToScore maps cosine distance [0, 2] to similarity [0, 1].
func distanceToScore(distance float32) float32 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	return score
}
