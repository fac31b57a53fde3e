package index

import (
	"fmt"
	"runtime"
	"time"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
)

// Config configures a Pipeline.
type Config struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// QueueHighWater is the depth above which the producer waits for
	// workers to catch up, for at most HighWaterWait per item.
	QueueHighWater int

	// QueueCapacity is the hard ceiling on queued items.
	QueueCapacity int

	HighWaterWait time.Duration

	// Backpressure maps queue depth to a per-item producer delay.
	Backpressure DelaySchedule

	// MonitorInterval is the period between progress reports. Zero disables the monitor.
	MonitorInterval time.Duration

	// LoadRate limits payload loads per second. Zero is unlimited.
	LoadRate float64

	// MetadataOnly indexes record metadata without loading payloads or
	// running builders.
	MetadataOnly bool

	// CommitRetry is applied to the final store commit.
	CommitRetry apperrors.RetryConfig
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	retry := apperrors.DefaultRetryConfig()
	retry.ShouldRetry = apperrors.IsRetryable

	return Config{
		Concurrency:     runtime.NumCPU(),
		QueueHighWater:  500,
		QueueCapacity:   1000,
		HighWaterWait:   2 * time.Second,
		Backpressure:    DefaultDelaySchedule(),
		MonitorInterval: 10 * time.Second,
		CommitRetry:     retry,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.QueueHighWater < 1 {
		return fmt.Errorf("queue high-water must be at least 1, got %d", c.QueueHighWater)
	}
	if c.QueueCapacity < c.QueueHighWater {
		return fmt.Errorf("queue capacity %d is below high-water %d", c.QueueCapacity, c.QueueHighWater)
	}
	if c.HighWaterWait < 0 {
		return fmt.Errorf("high-water wait must not be negative, got %s", c.HighWaterWait)
	}
	if c.MonitorInterval < 0 {
		return fmt.Errorf("monitor interval must not be negative, got %s", c.MonitorInterval)
	}
	if c.LoadRate < 0 {
		return fmt.Errorf("load rate must not be negative, got %g", c.LoadRate)
	}
	if err := c.Backpressure.Validate(); err != nil {
		return err
	}
	return nil
}
