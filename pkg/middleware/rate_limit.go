package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per key. Idle buckets expire from the cache.
type RateLimiter struct {
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
	keyFunc  func(r *http.Request) string
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(10*time.Minute, 20*time.Minute),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		keyFunc:  ClientKey,
	}
}

// ClientKey prefers the authenticated subject and falls back to the remote IP.
func ClientKey(r *http.Request) string {
	if c := Claims(r); c != nil {
		return "user:" + c.Sub
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	// Add loses to a concurrent insert; use the winner
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiter(rl.keyFunc(r)).Allow() {
				response.RateLimit(w, "Too many requests. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
