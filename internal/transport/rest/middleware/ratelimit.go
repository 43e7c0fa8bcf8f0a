package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP. Buckets idle for
// three minutes are dropped.
type RateLimiter struct {
	visitors *cache.Cache
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP limiter; rps <= 0 disables limiting
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: cache.New(3*time.Minute, time.Minute),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if x, found := rl.visitors.Get(ip); found {
		l := x.(*rate.Limiter)
		rl.visitors.SetDefault(ip, l)
		return l
	}
	l := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.visitors.Add(ip, l, cache.DefaultExpiration); err != nil {
		// lost the race to another request from the same client
		if x, found := rl.visitors.Get(ip); found {
			return x.(*rate.Limiter)
		}
	}
	return l
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rps <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiter(clientIP(r)).Allow() {
			retry := time.Duration(float64(time.Second) / float64(rl.rps))
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			http.Error(w, `{"ok":false,"error":"Too many requests, please try again later."}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
