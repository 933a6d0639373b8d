// Package admission implements the optional blocking admission-control
// layer. The request monitor only raises advisory signals; operators who
// want hard limits enable this per-client token bucket in front of it.
package admission

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/veilgate/veilgate/pkg/domain"
	"github.com/veilgate/veilgate/pkg/gateway"
)

// Limiter applies token bucket rate limiting per client identifier.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	rps     int
	burst   int
	enabled bool
}

// NewLimiter creates a limiter from the admission configuration.
func NewLimiter(cfg domain.AdmissionConfig) *Limiter {
	return &Limiter{
		buckets: make(map[string]*tokenBucket),
		rps:     cfg.RequestsPerSecond,
		burst:   cfg.BurstSize,
		enabled: cfg.Enabled,
	}
}

// Configure replaces the limiter settings. Existing buckets adopt the new
// rate on their next refill.
func (l *Limiter) Configure(cfg domain.AdmissionConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.enabled = cfg.Enabled
	l.rps = cfg.RequestsPerSecond
	l.burst = cfg.BurstSize
	for _, bucket := range l.buckets {
		bucket.configure(cfg.RequestsPerSecond, cfg.BurstSize)
	}
}

// Allow checks whether a request from the client should be admitted.
// Unknown clients get a fresh full bucket.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.RLock()
	enabled := l.enabled
	bucket, exists := l.buckets[clientID]
	l.mu.RUnlock()

	if !enabled {
		return true
	}

	if !exists {
		l.mu.Lock()
		bucket, exists = l.buckets[clientID]
		if !exists {
			bucket = newTokenBucket(l.rps, l.burst)
			l.buckets[clientID] = bucket
		}
		l.mu.Unlock()
	}

	return bucket.take()
}

// Wrap returns a handler that rejects over-limit clients with 429.
// Requests without a resolved client identifier are not limited here;
// they are already flagged by the monitor.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := gateway.PrincipalFromContext(r.Context())
		if !ok || p.ClientID == "" || l.Allow(p.ClientID) {
			next.ServeHTTP(w, r)
			return
		}

		l.mu.RLock()
		limit := l.rps
		l.mu.RUnlock()
		writeRateLimitHeaders(w, limit, 0, time.Now().Add(time.Second))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetTime time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}

// tokenBucket implements a token bucket refilled continuously by elapsed
// time.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64 // maximum burst size
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(rps, burstSize int) *tokenBucket {
	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	return &tokenBucket{
		rate:       float64(rps),
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) configure(rps, burstSize int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	tb.rate = float64(rps)
	tb.capacity = float64(burstSize)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

func (tb *tokenBucket) refill() {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
