package ui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_EmptyIsBlank(t *testing.T) {
	s := NewSparkline(5)
	assert.Equal(t, "     ", s.Render())
	assert.Zero(t, s.Max())
}

func TestSparkline_ScalesToPeak(t *testing.T) {
	// Given: samples rising to a peak
	s := NewSparkline(4)
	for _, v := range []float64{0, 7, 14} {
		s.Add(v)
	}

	// Then: oldest first, the peak is a full bar, padding follows
	assert.Equal(t, "▁▄█ ", s.Render())
	assert.Equal(t, 14.0, s.Max())
}

func TestSparkline_RingDropsOldest(t *testing.T) {
	s := NewSparkline(3)
	for _, v := range []float64{100, 1, 1, 1} {
		s.Add(v)
	}

	// The 100 has been overwritten, so 1 is now the peak
	assert.Equal(t, "███", s.Render())
	assert.Equal(t, 4, s.Count())
}

func TestSparkline_RenderWithWidth(t *testing.T) {
	s := NewSparkline(10)
	for i := 1; i <= 6; i++ {
		s.Add(float64(i))
	}

	// Only the newest samples are shown
	out := s.RenderWithWidth(3)
	assert.Equal(t, 3, utf8.RuneCountInString(out))
	assert.Equal(t, '█', []rune(out)[2])

	// Oversized widths fall back to the full size
	assert.Equal(t, 10, utf8.RuneCountInString(s.RenderWithWidth(50)))
}

func TestSparkline_Clear(t *testing.T) {
	s := NewSparkline(3)
	s.Add(5)
	s.Clear()
	assert.Zero(t, s.Count())
	assert.Equal(t, "   ", s.Render())
}

func TestNewSparkline_DefaultSize(t *testing.T) {
	assert.Equal(t, 60, utf8.RuneCountInString(NewSparkline(0).Render()))
}
