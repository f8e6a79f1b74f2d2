package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collab_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Admitter gates every attempt. *ratelimit.Limiter satisfies it.
type Admitter interface {
	Admit(ctx context.Context) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. It doubles on
	// every further failure.
	BaseDelay time.Duration

	// MaxDelay caps the exponential wait. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
	}
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must not be negative (got %s)", c.BaseDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max_delay must not be negative (got %s)", c.MaxDelay)
	}
	return nil
}

// Executor runs API calls through the limiter and retries transient failures.
type Executor struct {
	limiter Admitter
	config  RetryConfig
	sleep   SleepFunc
	logger  zerolog.Logger
}

// NewExecutor creates an executor. limiter may be nil, in which case attempts
// are not gated.
func NewExecutor(limiter Admitter, cfg RetryConfig, logger zerolog.Logger) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("retry: %w", err)
	}
	return &Executor{
		limiter: limiter,
		config:  cfg,
		sleep:   sleepContext,
		logger:  logger,
	}, nil
}

// SetSleep replaces the wait function (for testing).
func (e *Executor) SetSleep(fn SleepFunc) {
	e.sleep = fn
}

// Config returns the retry configuration.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// Execute calls fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. op names the operation in logs and errors.
//
// Cancellation of ctx is returned as-is and never counts as exhaustion.
func (e *Executor) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	schedule := e.newSchedule()

	var lastErr error
	var lastClass ErrorClass

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Admit(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info().
					Str("op", op).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}

		apiErr := asAPIError(err)
		lastErr = apiErr
		lastClass = apiErr.Class

		// Advance the schedule on every failure so attempt n always maps to
		// BaseDelay * 2^n, whatever a Retry-After did before.
		delay := schedule.NextBackOff()

		if !shouldRetry(apiErr.Class) {
			return apiErr
		}

		if attempt == e.config.MaxAttempts-1 {
			break
		}

		if apiErr.Class == ErrorClassRateLimit && apiErr.HasRetryAfter {
			delay = apiErr.RetryAfter
		}

		retriesTotal.WithLabelValues(string(apiErr.Class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(apiErr.Class)).Observe(delay.Seconds())

		e.logger.Warn().
			Err(apiErr).
			Str("op", op).
			Int("status_code", apiErr.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	e.logger.Warn().
		Str("op", op).
		Str("error_class", string(lastClass)).
		Int("max_attempts", e.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{Op: op, Attempts: e.config.MaxAttempts, Last: lastErr}
}

func (e *Executor) newSchedule() *backoff.ExponentialBackOff {
	maxInterval := e.config.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.config.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// asAPIError returns err's APIError, or wraps err as a network error.
func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Class:   ErrorClassNetwork,
		Message: "request failed",
		Err:     err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
