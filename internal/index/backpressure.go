package index

import (
	"fmt"
	"time"
)

// Band is one point of a delay schedule: at queue depth Depth the producer
// sleeps Delay before each push.
type Band struct {
	Depth int           `yaml:"depth"`
	Delay time.Duration `yaml:"delay"`
}

// DelaySchedule maps queue depth to a producer delay.
//
// The delay is linear between (0, Base) and each successive band point and
// is capped at the last band's delay beyond its depth.
type DelaySchedule struct {
	Base  time.Duration `yaml:"base"`
	Bands []Band        `yaml:"bands"`
}

// DefaultDelaySchedule returns the schedule used when none is configured.
func DefaultDelaySchedule() DelaySchedule {
	return DelaySchedule{
		Base: 0,
		Bands: []Band{
			{Depth: 250, Delay: 5 * time.Millisecond},
			{Depth: 500, Delay: 50 * time.Millisecond},
			{Depth: 1000, Delay: 500 * time.Millisecond},
			{Depth: 2000, Delay: 2 * time.Second},
		},
	}
}

// Validate checks that depths and delays both strictly increase.
func (s DelaySchedule) Validate() error {
	if s.Base < 0 {
		return fmt.Errorf("backpressure base delay must not be negative, got %s", s.Base)
	}

	prevDepth, prevDelay := 0, s.Base
	for i, b := range s.Bands {
		if b.Depth <= prevDepth {
			return fmt.Errorf("backpressure band %d: depth %d must exceed %d", i, b.Depth, prevDepth)
		}
		if b.Delay <= prevDelay {
			return fmt.Errorf("backpressure band %d: delay %s must exceed %s", i, b.Delay, prevDelay)
		}
		prevDepth, prevDelay = b.Depth, b.Delay
	}
	return nil
}

// Delay returns the producer delay for a queue depth.
func (s DelaySchedule) Delay(depth int) time.Duration {
	if depth <= 0 || len(s.Bands) == 0 {
		return s.Base
	}

	prevDepth, prevDelay := 0, s.Base
	for _, b := range s.Bands {
		if depth <= b.Depth {
			span := float64(depth-prevDepth) / float64(b.Depth-prevDepth)
			return prevDelay + time.Duration(span*float64(b.Delay-prevDelay))
		}
		prevDepth, prevDelay = b.Depth, b.Delay
	}
	return prevDelay
}
