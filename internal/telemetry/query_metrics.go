// Package telemetry collects search telemetry in memory for the MCP server.
// Nothing is persisted or reported externally.
package telemetry

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind classifies a search by what it was given.
type QueryKind string

const (
	QueryKindText   QueryKind = "text"
	QueryKindGeo    QueryKind = "geo"
	QueryKindRecord QueryKind = "record"
	QueryKindMixed  QueryKind = "mixed"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	// Query is a short description of the search, e.g. the text or the
	// identifier of the query record.
	Query     string
	Kind      QueryKind
	HitCount  int
	Latency   time.Duration
	Timestamp time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
// A non-positive capacity defaults to 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and splits it into terms of two or more
// letters or digits.
func ExtractTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroHitCount        int64                   `json:"zero_hit_count"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms,omitempty"`
	ZeroHitQueries      []string                `json:"zero_hit_queries,omitempty"`
	Since               time.Time               `json:"since"`
}

// ZeroHitPercentage returns the share of searches that found nothing.
func (s Snapshot) ZeroHitPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroHitCount) / float64(s.TotalQueries) * 100
}

// Config bounds the memory held by QueryMetrics.
type Config struct {
	TopTermsCapacity int
	ZeroHitCapacity  int
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{TopTermsCapacity: 100, ZeroHitCapacity: 100}
}

// QueryMetrics aggregates QueryEvents. Safe for concurrent use.
type QueryMetrics struct {
	mu        sync.Mutex
	kinds     map[QueryKind]int64
	latencies map[LatencyBucket]int64
	total     int64
	zeroHits  int64
	since     time.Time

	terms       *lru.Cache[string, int64]
	zeroQueries *CircularBuffer[string]
}

// NewQueryMetrics creates an empty collector.
func NewQueryMetrics(cfg Config) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = DefaultConfig().TopTermsCapacity
	}
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &QueryMetrics{
		kinds:       make(map[QueryKind]int64),
		latencies:   make(map[LatencyBucket]int64),
		since:       time.Now(),
		terms:       terms,
		zeroQueries: NewCircularBuffer[string](cfg.ZeroHitCapacity),
	}
}

// Record adds one search to the aggregates.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.kinds[event.Kind]++
	m.latencies[LatencyToBucket(event.Latency)]++

	if event.Kind == QueryKindText || event.Kind == QueryKindMixed {
		for _, term := range ExtractTerms(event.Query) {
			count, _ := m.terms.Get(term)
			m.terms.Add(term, count+1)
		}
	}

	if event.HitCount == 0 {
		m.zeroHits++
		m.zeroQueries.Add(event.Query)
	}
}

// Snapshot returns a copy of the current aggregates. TopTerms is sorted
// by count descending, then term.
func (m *QueryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		TotalQueries:        m.total,
		ZeroHitCount:        m.zeroHits,
		KindCounts:          make(map[QueryKind]int64, len(m.kinds)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroHitQueries:      m.zeroQueries.Items(),
		Since:               m.since,
	}
	for k, v := range m.kinds {
		snap.KindCounts[k] = v
	}
	for k, v := range m.latencies {
		snap.LatencyDistribution[k] = v
	}
	for _, term := range m.terms.Keys() {
		if count, ok := m.terms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	slices.SortFunc(snap.TopTerms, func(a, b TermCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})
	return snap
}
