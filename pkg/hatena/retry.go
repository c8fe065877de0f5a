package hatena

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hatena_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatena_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hatena_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the backoff shape for one error class.
type RetryConfig struct {
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including upstream Retry-After hints.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultMaxAttempts is the number of attempts per request, including the first.
const DefaultMaxAttempts = 3

// RetryConfigForErrorClass returns the backoff shape for an error class,
// scaled from base. With base = 1s, server errors wait 1s..10s, network
// errors 2s..30s and rate limiting 5s..60s.
func RetryConfigForErrorClass(errorClass ErrorClass, base time.Duration) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{InitialBackoff: base, MaxBackoff: 10 * base, BackoffMultiplier: 2.0}
	case ErrorClassRateLimit:
		return RetryConfig{InitialBackoff: 5 * base, MaxBackoff: 60 * base, BackoffMultiplier: 2.0}
	case ErrorClassNetwork:
		return RetryConfig{InitialBackoff: 2 * base, MaxBackoff: 30 * base, BackoffMultiplier: 2.0}
	default:
		return RetryConfig{InitialBackoff: base, MaxBackoff: 30 * base, BackoffMultiplier: 2.0}
	}
}

// backoffFor returns the jittered wait after the given failed attempt (1-based).
func (rc RetryConfig) backoffFor(attempt int, retryAfter time.Duration) time.Duration {
	backoff := float64(rc.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= rc.BackoffMultiplier
		if backoff > float64(rc.MaxBackoff) {
			backoff = float64(rc.MaxBackoff)
			break
		}
	}

	// ±20% jitter
	wait := time.Duration(backoff * (0.8 + rand.Float64()*0.4))
	if retryAfter > wait {
		wait = retryAfter
	}
	if wait > rc.MaxBackoff {
		wait = rc.MaxBackoff
	}
	return wait
}

// retrier executes a request function with bounded, jittered exponential
// backoff. The class of every failure decides whether and how long to wait.
type retrier struct {
	maxAttempts int
	baseBackoff time.Duration
	logger      zerolog.Logger
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	maxAttempts := r.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var errorClass ErrorClass

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = ClassOf(err)

		if !shouldRetry(errorClass) || ctx.Err() != nil {
			return lastErr
		}

		if attempt >= maxAttempts {
			break
		}

		var retryAfter time.Duration
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			retryAfter = apiErr.RetryAfter
		}

		wait := RetryConfigForErrorClass(errorClass, r.baseBackoff).backoffFor(attempt, retryAfter)
		retriesTotal.WithLabelValues(string(errorClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		r.logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	r.logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
