package ui

import "strings"

// SparklineChars are the block characters used for sparkline bars, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-size ring of samples rendered as block characters,
// scaled to the largest sample currently held. Not safe for concurrent use.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding the last size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the largest sample held.
func (s *Sparkline) Max() float64 {
	var m float64
	for _, v := range s.recent(len(s.samples)) {
		m = max(m, v)
	}
	return m
}

// Render returns the sparkline at its full size.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(len(s.samples))
}

// RenderWithWidth returns the most recent width samples, oldest first,
// left-aligned and padded with spaces when fewer samples exist.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width > len(s.samples) {
		width = len(s.samples)
	}

	values := s.recent(width)
	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range values {
		sb.WriteRune(SparklineChars[level(v, peak)])
	}
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	return sb.String()
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := min(s.count, len(s.samples))
	n = min(n, held)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := (s.head - n + i + len(s.samples)) % len(s.samples)
		out[i] = s.samples[idx]
	}
	return out
}

// level maps v onto a SparklineChars index relative to peak.
func level(v, peak float64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	idx := int(v / peak * float64(len(SparklineChars)-1))
	return min(max(idx, 0), len(SparklineChars)-1)
}
