package ui

import (
	"sync"
	"time"
)

// ProgressTracker accumulates monitor reports for the TUI.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.RWMutex
	last      ProgressEvent
	startTime time.Time
	errors    []ErrorEvent
	warnings  []ErrorEvent
	maxDepth  int

	// Throughput is derived from successive reports, since the pipeline
	// does not know how many records its source holds.
	lastProcessed int
	lastSample    time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	speedSamples  int
	throughput    *Sparkline
	depth         *Sparkline
}

// SpeedStats contains speed metrics for display.
type SpeedStats struct {
	Current float64 // Current items/sec
	Avg     float64 // Rolling average
	Peak    float64 // Maximum observed
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage      Stage
	Processed  int
	Skipped    int
	Failed     int
	QueueDepth int
	MaxDepth   int
	Elapsed    time.Duration
	PerItem    time.Duration
	Message    string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		last:       ProgressEvent{Stage: StageLoading},
		startTime:  now,
		lastSample: now,
		throughput: NewSparkline(60),
		depth:      NewSparkline(60),
	}
}

// Update records a monitor report.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = event
	if event.QueueDepth > p.maxDepth {
		p.maxDepth = event.QueueDepth
	}
	p.depth.Add(float64(event.QueueDepth))

	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	delta := event.Processed - p.lastProcessed
	if elapsed <= 0 || delta < 0 {
		return
	}

	speed := float64(delta) / elapsed.Seconds()
	p.currentSpeed = speed

	// Smoothing factor 0.2 gives responsive but stable average
	p.speedSamples++
	if p.speedSamples == 1 {
		p.avgSpeed = speed
	} else {
		p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
	}
	if speed > p.peakSpeed {
		p.peakSpeed = speed
	}
	p.throughput.Add(speed)

	p.lastProcessed = event.Processed
	p.lastSample = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Elapsed returns time since tracker creation.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.startTime)
}

// Stats returns current statistics snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressStats{
		Stage:      p.last.Stage,
		Processed:  p.last.Processed,
		Skipped:    p.last.Skipped,
		Failed:     p.last.Failed,
		QueueDepth: p.last.QueueDepth,
		MaxDepth:   p.maxDepth,
		Elapsed:    p.last.Elapsed,
		PerItem:    p.last.PerItem,
		Message:    p.last.Message,
		ErrorCount: len(p.errors),
		WarnCount:  len(p.warnings),
		Speed: SpeedStats{
			Current: p.currentSpeed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

// Errors returns the list of recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.errors))
	copy(result, p.errors)
	return result
}

// Warnings returns the list of recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.warnings))
	copy(result, p.warnings)
	return result
}

// RenderThroughput returns the items/sec sparkline.
func (p *ProgressTracker) RenderThroughput(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.throughput.RenderWithWidth(width)
}

// RenderDepth returns the queue depth sparkline.
func (p *ProgressTracker) RenderDepth(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.depth.RenderWithWidth(width)
}
