package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200}
}

// bucket is a token bucket refilled lazily on each take.
type bucket struct {
	mu     sync.Mutex
	level  float64
	cap    float64
	rate   float64
	filled time.Time
}

func newBucket(rate float64, burst int) *bucket {
	return &bucket{
		level:  float64(burst),
		cap:    float64(burst),
		rate:   rate,
		filled: time.Now(),
	}
}

// take consumes one token. When the bucket is empty it reports how many
// whole seconds until a token becomes available, never less than 1.
func (b *bucket) take() (ok bool, retryAfter int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.level += now.Sub(b.filled).Seconds() * b.rate
	if b.level > b.cap {
		b.level = b.cap
	}
	b.filled = now

	if b.level >= 1 {
		b.level--
		return true, 0
	}
	if b.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.level)/b.rate) + 1
}

// limiterPool maps client keys to their buckets. Buckets live for the
// process lifetime; the key space is bounded by the set of client IPs.
type limiterPool struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	return &limiterPool{buckets: make(map[string]*bucket), cfg: cfg}
}

func (p *limiterPool) bucketFor(key string) *bucket {
	p.mu.RLock()
	b, ok := p.buckets[key]
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets[key]; ok {
		return b
	}
	b = newBucket(p.cfg.RequestsPerSecond, p.cfg.BurstSize)
	p.buckets[key] = b
	return b
}

// RateLimit throttles requests per client address.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	pool := newLimiterPool(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, retryAfter := pool.bucketFor(c.RealIP()).take()
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
