// Package ratelimit implements a per-host token bucket limiter for outbound requests.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/model-catalog/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

type hostState struct {
	bucket      *rate.Limiter
	pausedUntil time.Time
}

// Limiter paces requests per host. A host told to back off with Pause
// receives no tokens until the pause ends.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	rate  rate.Limit
	burst int
	now   func() time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	metrics.Init()
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		hosts: make(map[string]*hostState),
		rate:  r,
		burst: burst,
		now:   time.Now,
	}
}

// Wait blocks until the host of rawURL is out of any pause and a token is
// available, or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	l.mu.Lock()
	st := l.state(hostOf(rawURL))
	pause := st.pausedUntil.Sub(l.now())
	l.mu.Unlock()

	start := time.Now()
	if pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit pause: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := st.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}

// Pause holds back every request to the host of rawURL for d. Overlapping
// pauses keep the later deadline.
func (l *Limiter) Pause(rawURL string, d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(hostOf(rawURL))
	if until := l.now().Add(d); until.After(st.pausedUntil) {
		st.pausedUntil = until
	}
}

// state must be called with mu held.
func (l *Limiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{bucket: rate.NewLimiter(l.rate, l.burst)}
		l.hosts[host] = st
	}
	return st
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}
