package courier

import "time"

// Config holds pipeline-wide configuration.
type Config struct {
	// Concurrency is the maximum number of jobs each queue processes
	// simultaneously.
	Concurrency int

	// MaxRetries is the default retry budget for jobs that don't set
	// their own.
	MaxRetries int

	// SampleInterval is how often the monitor samples queue, limiter,
	// and processor state.
	SampleInterval time.Duration

	// QueueDepthWarning is the waiting-job count above which the
	// monitor raises a warning alert. It matches the width of the
	// queue counts it is compared against.
	QueueDepthWarning int64

	// ErrorRateThreshold is the failed/completed ratio above which the
	// monitor raises an error alert.
	ErrorRateThreshold float64

	// MetricRetention bounds how long monitor metric series are kept.
	MetricRetention time.Duration

	// ShutdownTimeout is the maximum time to wait for active jobs
	// during graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        5,
		MaxRetries:         3,
		SampleInterval:     10 * time.Second,
		QueueDepthWarning:  1000,
		ErrorRateThreshold: 0.1,
		MetricRetention:    24 * time.Hour,
		ShutdownTimeout:    30 * time.Second,
	}
}
