package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"empire", "state", "nyc", "1931"}, ExtractTerms("Empire-State, NYC a 1931!"))
	assert.Empty(t, ExtractTerms("  "))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a mix of searches
	m := NewQueryMetrics(DefaultConfig())
	m.Record(QueryEvent{Query: "harbour bridge", Kind: QueryKindText, HitCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "bridge night", Kind: QueryKindText, HitCount: 0, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "40.7,-73.9", Kind: QueryKindGeo, HitCount: 0, Latency: 200 * time.Millisecond})
	m.Record(QueryEvent{Query: "empire", Kind: QueryKindRecord, HitCount: 4, Latency: time.Millisecond})

	// When: taking a snapshot
	snap := m.Snapshot()

	// Then: the aggregates reflect every event
	assert.Equal(t, int64(4), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.ZeroHitCount)
	assert.InDelta(t, 50.0, snap.ZeroHitPercentage(), 1e-9)
	assert.Equal(t, int64(2), snap.KindCounts[QueryKindText])
	assert.Equal(t, int64(1), snap.KindCounts[QueryKindGeo])
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, []string{"bridge night", "40.7,-73.9"}, snap.ZeroHitQueries)

	// Only text queries contribute terms; "bridge" leads
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "bridge", Count: 2}, snap.TopTerms[0])
	for _, tc := range snap.TopTerms {
		assert.NotEqual(t, "empire", tc.Term)
	}
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	snap := NewQueryMetrics(Config{}).Snapshot()
	assert.Zero(t, snap.TotalQueries)
	assert.Zero(t, snap.ZeroHitPercentage())
	assert.False(t, snap.Since.IsZero())
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := NewQueryMetrics(DefaultConfig())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Record(QueryEvent{Query: "sunset beach", Kind: QueryKindText, HitCount: i % 2})
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(800), snap.TotalQueries)
	assert.Equal(t, int64(400), snap.ZeroHitCount)
}
