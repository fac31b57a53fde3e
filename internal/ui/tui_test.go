package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_ReturnsErrorForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	// Then: returns error (can't create TUI for non-TTY)
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexingModel_StageIndicators(t *testing.T) {
	// Given: a model while draining
	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, "", 0)
	model.styles = NoColorStyles()
	tracker.Update(ProgressEvent{Stage: StageDraining})

	// When: rendering
	view := model.View()

	// Then: every stage is listed and loading is marked done
	assert.Contains(t, view, "● Loading")
	assert.Contains(t, view, "Draining")
	assert.Contains(t, view, "○ Committing")
}

func TestIndexingModel_Counters(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Update(ProgressEvent{Stage: StageLoading, Processed: 42, Skipped: 3, Failed: 1, QueueDepth: 250})
	model := newIndexingModel(tracker, "/data/imagedex.db", 0)
	model.styles = NoColorStyles()

	view := model.View()

	assert.Contains(t, view, "processed 42")
	assert.Contains(t, view, "skipped 3")
	assert.Contains(t, view, "failed 1")
	assert.Contains(t, view, "queue 250 (peak 250)")
	assert.Contains(t, view, "/data/imagedex.db")
}

func TestIndexingModel_QueueBar(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Update(ProgressEvent{QueueDepth: 500})
	model := newIndexingModel(tracker, "", 1000)
	model.styles = NoColorStyles()

	// The bar renders alongside the depth label
	assert.Contains(t, model.renderQueue(), "queue 500")
}

func TestIndexingModel_ErrorDisplay(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{Item: "a", Err: assert.AnError})
	tracker.AddError(ErrorEvent{Item: "b", Err: assert.AnError, IsWarn: true})
	model := newIndexingModel(tracker, "", 0)
	model.styles = NoColorStyles()

	view := model.View()

	assert.Contains(t, view, "1 errors")
	assert.Contains(t, view, "1 warnings")
}

func TestIndexingModel_CompletionState(t *testing.T) {
	// Given: a model receiving the completion message
	model := newIndexingModel(NewProgressTracker(), "", 0)
	model.styles = NoColorStyles()

	_, cmd := model.Update(completeMsg(CompletionStats{
		Processed: 100,
		Indexed:   97,
		Skipped:   2,
		Failed:    1,
		Duration:  65 * time.Second,
		PerItem:   650 * time.Millisecond,
	}))

	// Then: the model quits and shows the summary
	assert.NotNil(t, cmd)
	view := model.View()
	assert.Contains(t, view, "Indexing Complete")
	assert.Contains(t, view, "97")
	assert.Contains(t, view, "1m 5s")
	assert.Contains(t, view, "2 skipped")
	assert.Contains(t, view, "1 failed")
}

func TestIndexingModel_WindowResize(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "", 100)

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, model.width)
	assert.Equal(t, 90, model.queueBar.Width)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 30s", formatDuration(150*time.Second))
	assert.Equal(t, "1h 5m", formatDuration(65*time.Minute))
}
