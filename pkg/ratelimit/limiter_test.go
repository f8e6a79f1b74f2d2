package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances only when Sleep is called or the test moves it.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func newTestLimiter(t *testing.T, cfg Config, clock Clock) *Limiter {
	t.Helper()
	l, err := NewLimiterWithClock(cfg, clock, testLogger())
	if err != nil {
		t.Fatalf("NewLimiterWithClock() error = %v", err)
	}
	return l
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultConfig(), wantErr: false},
		{name: "zero max requests", cfg: Config{MaxRequests: 0, Window: time.Second}, wantErr: true},
		{name: "zero window", cfg: Config{MaxRequests: 1}, wantErr: true},
		{name: "negative buffer", cfg: Config{MaxRequests: 1, Window: time.Second, Buffer: -1}, wantErr: true},
		{name: "negative min interval", cfg: Config{MaxRequests: 1, Window: time.Second, MinInterval: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLimiter_AdmitsUpToMaxWithoutWaiting(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{MaxRequests: 3, Window: 5 * time.Second}, clock)

	for i := 0; i < 3; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit() #%d error = %v", i, err)
		}
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", clock.sleeps)
	}
	if got, max := l.InWindow(); got != 3 || max != 3 {
		t.Errorf("InWindow() = (%d, %d), want (3, 3)", got, max)
	}
}

func TestLimiter_WaitsForOldestToExpire(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{MaxRequests: 2, Window: 5 * time.Second, Buffer: 100 * time.Millisecond}, clock)
	ctx := context.Background()

	_ = l.Admit(ctx)
	clock.Advance(1 * time.Second)
	_ = l.Admit(ctx)
	clock.Advance(1 * time.Second)

	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	// Oldest admitted at t0, now is t0+2s: wait 5s - 2s + 100ms.
	want := 3*time.Second + 100*time.Millisecond
	if len(clock.sleeps) != 1 || clock.sleeps[0] != want {
		t.Errorf("sleeps = %v, want [%v]", clock.sleeps, want)
	}
}

func TestLimiter_WindowPropertyHolds(t *testing.T) {
	const (
		maxRequests = 5
		window      = 2 * time.Second
	)

	for _, buffer := range []time.Duration{0, 10 * time.Millisecond} {
		clock := newFakeClock()
		l := newTestLimiter(t, Config{MaxRequests: maxRequests, Window: window, Buffer: buffer}, clock)
		rng := rand.New(rand.NewSource(42))

		var admitted []time.Time
		for i := 0; i < 300; i++ {
			clock.Advance(time.Duration(rng.Intn(600)) * time.Millisecond)
			if err := l.Admit(context.Background()); err != nil {
				t.Fatalf("Admit() error = %v", err)
			}
			admitted = append(admitted, clock.Now())
		}

		for i, end := range admitted {
			count := 0
			for _, ts := range admitted[:i+1] {
				if end.Sub(ts) < window {
					count++
				}
			}
			if count > maxRequests {
				t.Fatalf("buffer %v: %d admissions within window ending at #%d, max %d", buffer, count, i, maxRequests)
			}
		}
	}
}

// backwardsClock returns a fixed sequence of instants, some earlier than the last.
type backwardsClock struct {
	times []time.Time
	i     int
}

func (c *backwardsClock) Now() time.Time {
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func (c *backwardsClock) Sleep(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return errors.New("negative sleep")
	}
	return nil
}

func TestLimiter_ClockGoingBackwards(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &backwardsClock{times: []time.Time{
		base,
		base.Add(-2 * time.Second),
		base.Add(-3 * time.Second),
		base.Add(10 * time.Second),
	}}
	l := newTestLimiter(t, Config{MaxRequests: 2, Window: 5 * time.Second}, clock)

	for i := 0; i < 3; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit() #%d error = %v", i, err)
		}
	}

	stamps := l.window.stamps
	for i := 1; i < len(stamps); i++ {
		if stamps[i].Before(stamps[i-1]) {
			t.Errorf("window not ordered: %v", stamps)
		}
	}
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute}, clock)

	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Admit(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Admit() error = %v, want context.Canceled", err)
	}
}

func TestLimiter_MinIntervalPacing(t *testing.T) {
	l, err := NewLimiter(Config{
		MaxRequests: 100,
		Window:      time.Second,
		MinInterval: 20 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("3 paced admissions took %v, want >= ~40ms", elapsed)
	}
}
