// ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyLimiter keeps one token bucket per key (e.g. per client IP). Keys
// idle for longer than the TTL are dropped by a background sweep that
// runs until Stop is called.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter creates a limiter allowing perSecond requests per key with
// bursts up to burst. ttl is how long an idle key is remembered.
func NewKeyLimiter(perSecond float64, burst int, ttl time.Duration) *KeyLimiter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	kl := &KeyLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go kl.sweep()
	return kl
}

// Allow reports whether a request for key may proceed, consuming a token
// if so.
func (kl *KeyLimiter) Allow(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RetryAfter estimates how long key must wait for the next token.
func (kl *KeyLimiter) RetryAfter(key string) time.Duration {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.limiters[key]
	if !ok {
		return 0
	}
	now := kl.now()
	r := e.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return kl.ttl
	}
	return r.DelayFrom(now)
}

// Size returns the number of tracked keys.
func (kl *KeyLimiter) Size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// Stop ends the background sweep. It is safe to call more than once.
func (kl *KeyLimiter) Stop() {
	kl.once.Do(func() { close(kl.stop) })
}

func (kl *KeyLimiter) sweep() {
	ticker := time.NewTicker(kl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stop:
			return
		case <-ticker.C:
			kl.evictIdle()
		}
	}
}

func (kl *KeyLimiter) evictIdle() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	now := kl.now()
	for key, e := range kl.limiters {
		if now.Sub(e.lastSeen) > kl.ttl {
			delete(kl.limiters, key)
		}
	}
}

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys on RemoteAddr without its port. Forwarding headers are
// never read here; behind a proxy, mount middleware.RealIP with the proxy's
// address so RemoteAddr already holds the client.
func IPKeyFunc(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Config configures Middleware.
type Config struct {
	// Rate is requests per second per key. Required.
	Rate float64

	// Burst is the maximum burst size. Required.
	Burst int

	// KeyFunc defaults to IPKeyFunc.
	KeyFunc KeyFunc

	// TTL is how long idle keys are remembered. Default: 1 hour.
	TTL time.Duration

	// OnLimited writes the response for a limited request. The default
	// writes a plain 429.
	OnLimited func(w http.ResponseWriter, r *http.Request)
}

// Middleware applies per-key rate limiting with a limiter it owns. Use
// MiddlewareWithLimiter to keep a handle for Stop.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return MiddlewareWithLimiter(NewKeyLimiter(cfg.Rate, cfg.Burst, cfg.TTL), cfg)
}

// MiddlewareWithLimiter applies rate limiting using limiter.
func MiddlewareWithLimiter(limiter *KeyLimiter, cfg Config) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPKeyFunc
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if limiter.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(limiter.RetryAfter(key).Seconds() + 0.999)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if cfg.OnLimited != nil {
				cfg.OnLimited(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
