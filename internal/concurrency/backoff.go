// Package concurrency holds the small shared concurrency primitives the
// stores and the coordinator lean on: a jittered exponential backoff (the
// progress store's lock-acquisition retry), a load-adaptive variant of it
// (the coordinator's dispatch throttle), and an atomic counter.
package concurrency

import (
	"math/rand"
	"time"
)

// BackoffConfig defines the configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration // Starting delay
	MaxDelay     time.Duration // Maximum delay
	Multiplier   float64       // Delay multiplier
	Jitter       bool          // Add random jitter
	MaxRetries   int           // Maximum number of retries (-1 for unlimited)
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		MaxRetries:   10,
	}
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	config     BackoffConfig
	attempts   int
	lastDelay  time.Duration
	totalDelay time.Duration
}

// NewExponentialBackoff creates a new exponential backoff instance
func NewExponentialBackoff(config BackoffConfig) *ExponentialBackoff {
	return &ExponentialBackoff{
		config:    config,
		attempts:  0,
		lastDelay: config.InitialDelay,
	}
}

// Reset resets the backoff state
func (eb *ExponentialBackoff) Reset() {
	eb.attempts = 0
	eb.lastDelay = eb.config.InitialDelay
	eb.totalDelay = 0
}

// NextDelay calculates the next delay duration
func (eb *ExponentialBackoff) NextDelay() time.Duration {
	if eb.config.MaxRetries >= 0 && eb.attempts >= eb.config.MaxRetries {
		return 0 // No more retries
	}

	delay := eb.lastDelay

	// Apply jitter if enabled
	if eb.config.Jitter {
		// Add random jitter of ±25%
		jitterFactor := 0.75 + rand.Float64()*0.5 // 0.75 to 1.25
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	// Cap at max delay
	if delay > eb.config.MaxDelay {
		delay = eb.config.MaxDelay
	}

	// Calculate next delay for next attempt
	eb.lastDelay = time.Duration(float64(eb.lastDelay) * eb.config.Multiplier)
	if eb.lastDelay > eb.config.MaxDelay {
		eb.lastDelay = eb.config.MaxDelay
	}

	eb.attempts++
	eb.totalDelay += delay

	return delay
}

// Attempts returns the number of attempts made
func (eb *ExponentialBackoff) Attempts() int {
	return eb.attempts
}

// TotalDelay returns the total delay accumulated
func (eb *ExponentialBackoff) TotalDelay() time.Duration {
	return eb.totalDelay
}

// ShouldRetry returns true if another retry should be attempted
func (eb *ExponentialBackoff) ShouldRetry() bool {
	if eb.config.MaxRetries < 0 {
		return true // Unlimited retries
	}
	return eb.attempts < eb.config.MaxRetries
}

// AdaptiveBackoff adjusts backoff based on system load
type AdaptiveBackoff struct {
	baseBackoff *ExponentialBackoff
	loadFactor  float64
	lastAdjust  time.Time
}

// NewAdaptiveBackoff creates a new adaptive backoff
func NewAdaptiveBackoff(config BackoffConfig) *AdaptiveBackoff {
	return &AdaptiveBackoff{
		baseBackoff: NewExponentialBackoff(config),
		loadFactor:  1.0,
		lastAdjust:  time.Now(),
	}
}

// NextDelay returns the next delay adjusted for system load
func (ab *AdaptiveBackoff) NextDelay() time.Duration {
	baseDelay := ab.baseBackoff.NextDelay()
	adjustedDelay := time.Duration(float64(baseDelay) * ab.loadFactor)

	// Cap at reasonable maximum
	maxDelay := 5 * time.Minute
	if adjustedDelay > maxDelay {
		adjustedDelay = maxDelay
	}

	return adjustedDelay
}

// AdjustLoadFactor adjusts the backoff based on system metrics
func (ab *AdaptiveBackoff) AdjustLoadFactor(cpuUsage, memoryUsage float64) {
	// Increase backoff when system is heavily loaded
	loadPressure := (cpuUsage + memoryUsage) / 200.0 // Normalize to 0-1

	// Adjust load factor (0.5 to 3.0)
	ab.loadFactor = 1.0 + (loadPressure * 2.0)
	if ab.loadFactor < 0.5 {
		ab.loadFactor = 0.5
	}
	if ab.loadFactor > 3.0 {
		ab.loadFactor = 3.0
	}

	ab.lastAdjust = time.Now()
}

// Reset resets the adaptive backoff
func (ab *AdaptiveBackoff) Reset() {
	ab.baseBackoff.Reset()
	ab.loadFactor = 1.0
}
