// Package retry runs an operation again with exponentially growing pauses.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/polytracker/scanner/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // including the first
	InitialDelay time.Duration // pause before the second attempt
	MaxDelay     time.Duration // 0 means uncapped
	Multiplier   float64
	// Retryable decides whether a failed attempt is worth repeating.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig waits 1s then 2s and gives up after the third attempt
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// RetryResult describes how an operation finished
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is one attempt. attempt starts at 1.
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff calls fn until it succeeds, returns a non-retryable
// error, exhausts MaxAttempts, or ctx is done. The backoff sleep honors ctx.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := max(config.MaxAttempts, 1)
	log := logging.FromContext(ctx)
	start := time.Now()
	result := &RetryResult{}
	defer func() { result.TotalDuration = time.Since(start) }()

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			result.Success, result.LastError = true, nil
			if attempt > 1 {
				log.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		switch {
		case config.Retryable != nil && !config.Retryable(err):
			log.WithError(err).Debug("Operation failed with non-retryable error")
			return result
		case attempt >= maxAttempts:
			log.WithError(err).WithField("attempts", attempt).Warn("Operation failed after max retry attempts")
			return result
		case ctx.Err() != nil:
			result.LastError = ctx.Err()
			return result
		}

		delay := calculateDelay(config, attempt)
		log.WithError(err).WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": maxAttempts,
			"delay":       delay.String(),
		}).Warn("Operation failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			return result
		}
	}
}

// calculateDelay returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		return config.MaxDelay
	}
	return time.Duration(delay)
}
