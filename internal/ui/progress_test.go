package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts loading with zero counts
	stats := tracker.Stats()
	assert.Equal(t, StageLoading, stats.Stage)
	assert.Zero(t, stats.Processed)
	assert.Zero(t, stats.MaxDepth)
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: recording two reports
	tracker.Update(ProgressEvent{Stage: StageLoading, Processed: 10, QueueDepth: 300})
	tracker.Update(ProgressEvent{Stage: StageDraining, Processed: 20, Skipped: 1, Failed: 2, QueueDepth: 40})

	// Then: the latest report wins and the peak depth is remembered
	stats := tracker.Stats()
	assert.Equal(t, StageDraining, stats.Stage)
	assert.Equal(t, 20, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 40, stats.QueueDepth)
	assert.Equal(t, 300, stats.MaxDepth)
}

func TestProgressTracker_Speed(t *testing.T) {
	tracker := NewProgressTracker()

	time.Sleep(20 * time.Millisecond)
	tracker.Update(ProgressEvent{Processed: 100})

	stats := tracker.Stats()
	assert.Greater(t, stats.Speed.Current, 0.0)
	assert.Equal(t, stats.Speed.Current, stats.Speed.Avg)
	assert.Equal(t, stats.Speed.Current, stats.Speed.Peak)
	assert.NotEqual(t, "", tracker.RenderThroughput(10))
}

func TestProgressTracker_AddError(t *testing.T) {
	tracker := NewProgressTracker()

	tracker.AddError(ErrorEvent{Item: "a", Err: assert.AnError})
	tracker.AddError(ErrorEvent{Item: "b", Err: assert.AnError, IsWarn: true})
	tracker.AddError(ErrorEvent{Item: "c", Err: assert.AnError, IsWarn: true})

	stats := tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
	assert.Len(t, tracker.Errors(), 1)
	assert.Len(t, tracker.Warnings(), 2)
	assert.Equal(t, "a", tracker.Errors()[0].Item)
}

func TestProgressTracker_ThreadSafety(t *testing.T) {
	tracker := NewProgressTracker()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Update(ProgressEvent{Processed: j, QueueDepth: i})
				_ = tracker.Stats()
				_ = tracker.RenderDepth(20)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 7, tracker.Stats().MaxDepth)
}

func TestProgressTracker_Elapsed(t *testing.T) {
	tracker := NewProgressTracker()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, tracker.Elapsed(), 5*time.Millisecond)
}
