package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request admission.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_ratelimit_waits_total",
		Help: "Total number of times a request had to wait for window capacity",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_ratelimit_wait_seconds",
		Help:    "Time spent waiting for window capacity",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	rateLimitWindowRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_ratelimit_window_requests",
		Help: "Requests admitted within the current trailing window",
	})
)

// Clock abstracts time so admission can be tested without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Config holds limiter configuration.
type Config struct {
	// MaxRequests is the number of requests allowed within Window.
	MaxRequests int

	// Window is the width of the trailing window.
	Window time.Duration

	// Buffer is added to every computed wait.
	Buffer time.Duration

	// MinInterval spaces consecutive requests apart. Zero disables pacing.
	MinInterval time.Duration
}

// DefaultConfig returns conservative defaults for the Spotify Web API.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 20,
		Window:      5 * time.Second,
		Buffer:      100 * time.Millisecond,
		MinInterval: 50 * time.Millisecond,
	}
}

// Validate checks that the configuration can admit requests.
func (c Config) Validate() error {
	if c.MaxRequests < 1 {
		return fmt.Errorf("max_requests must be >= 1 (got %d)", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive (got %s)", c.Window)
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative (got %s)", c.Buffer)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min_interval must not be negative (got %s)", c.MinInterval)
	}
	return nil
}

// Limiter admits outbound requests so that no more than MaxRequests fall
// within any trailing Window.
type Limiter struct {
	mu     sync.Mutex
	config Config
	window *Window
	clock  Clock
	pacer  *rate.Limiter
	logger zerolog.Logger
}

// NewLimiter creates a limiter on the wall clock.
func NewLimiter(cfg Config, logger zerolog.Logger) (*Limiter, error) {
	return NewLimiterWithClock(cfg, RealClock(), logger)
}

// NewLimiterWithClock creates a limiter on the given clock. Pacing by
// MinInterval always uses wall time.
func NewLimiterWithClock(cfg Config, clock Clock, logger zerolog.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}
	if clock == nil {
		clock = RealClock()
	}

	l := &Limiter{
		config: cfg,
		window: NewWindow(cfg.Window),
		clock:  clock,
		logger: logger,
	}
	if cfg.MinInterval > 0 {
		l.pacer = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return l, nil
}

// Admit blocks until one more request fits in the window and records it.
// It only returns an error when ctx is cancelled while waiting.
func (l *Limiter) Admit(ctx context.Context) error {
	if l.pacer != nil {
		if err := l.pacer.Wait(ctx); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.clock.Now()
		l.window.Prune(now)

		if l.window.Len() < l.config.MaxRequests {
			l.window.Record(now)
			rateLimitWindowRequests.Set(float64(l.window.Len()))
			return nil
		}

		wait := l.window.WaitFor(now, l.config.Buffer)
		l.logger.Debug().
			Int("in_window", l.window.Len()).
			Int("max_requests", l.config.MaxRequests).
			Dur("wait", wait).
			Msg("Window full, waiting for capacity")

		rateLimitWaitsTotal.Inc()
		rateLimitWaitSeconds.Observe(wait.Seconds())

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow reports the number of admissions inside the current window and the
// configured maximum.
func (l *Limiter) InWindow() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window.Count(l.clock.Now()), l.config.MaxRequests
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.config
}
