package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const bucketIdle = 10 * time.Minute

// TriggerLimiter is a per-caller token bucket for the manual sync triggers.
type TriggerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTriggerLimiter allows rate requests per second with the given burst per
// caller.
func NewTriggerLimiter(rate float64, burst int) *TriggerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TriggerLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes one token for caller. Idle buckets are evicted as a side
// effect.
func (l *TriggerLimiter) Allow(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > bucketIdle {
		for k, b := range l.buckets {
			if now.Sub(b.last) > bucketIdle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[caller]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[caller] = b
	}
	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects callers over the limit with 429.
func (l *TriggerLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.RemoteAddr
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			caller = xri
		}
		if !l.Allow(caller) {
			if l.rate > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(1/l.rate)+1))
			}
			http.Error(w, "too many sync triggers", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
