// Package ratelimit implements token bucket limits: one bucket per host for politeness
// and a single global bucket for overall job throughput.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
)

// GlobalDomain labels waits on the global limiter.
const GlobalDomain = "global"

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r, burst := limitFor(cfg.DefaultRPS, cfg.DefaultBurst)
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the url's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := hostOf(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	return wait(ctx, limiter, domain)
}

// Hosts returns how many hosts currently hold a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Global caps total job throughput regardless of worker count.
type Global struct {
	limiter *rate.Limiter
}

// NewGlobal creates a global limiter allowing rps jobs per second.
func NewGlobal(rps float64, burst int) *Global {
	r, b := limitFor(rps, burst)
	return &Global{limiter: rate.NewLimiter(r, b)}
}

// Wait blocks until the next job may start.
func (g *Global) Wait(ctx context.Context) error {
	return wait(ctx, g.limiter, GlobalDomain)
}

func wait(ctx context.Context, limiter *rate.Limiter, domain string) error {
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Skip samples for tokens that were already available.
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, duration)
	}
	return nil
}

func limitFor(rps float64, burst int) (rate.Limit, int) {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return r, burst
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
