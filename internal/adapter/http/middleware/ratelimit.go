package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

// DefaultLimiterIdle is how long a client's bucket outlives its last request.
const DefaultLimiterIdle = 10 * time.Minute

// RateLimiter keeps one token bucket per client address. Buckets of clients
// that went quiet expire on their own.
type RateLimiter struct {
	buckets *cache.Cache
	rate    rate.Limit
	burst   int
	metrics *metrics.Metrics
}

// NewRateLimiter allows rps requests per second per client with bursts of
// burst.
func NewRateLimiter(rps float64, burst int, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		buckets: cache.New(DefaultLimiterIdle, DefaultLimiterIdle/2),
		rate:    rate.Limit(rps),
		burst:   burst,
		metrics: m,
	}
}

func (rl *RateLimiter) bucket(client string) *rate.Limiter {
	if v, ok := rl.buckets.Get(client); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.SetDefault(client, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.rate, rl.burst)
	if err := rl.buckets.Add(client, lim, cache.DefaultExpiration); err != nil {
		// lost the race to another request from the same client
		if v, ok := rl.buckets.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Limit answers 429 with Retry-After once a client's bucket is empty.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)

		res := rl.bucket(client).Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			if rl.metrics != nil {
				rl.metrics.RateLimitHits.WithLabelValues(client).Inc()
			}
			w.Header().Set("Retry-After", retryAfter(res, delay))
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfter(res *rate.Reservation, delay time.Duration) string {
	if !res.OK() || delay == rate.InfDuration {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(delay.Seconds())))
}

// clientIP strips the port from RemoteAddr; chi's RealIP has already
// applied forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Size returns the number of tracked clients.
func (rl *RateLimiter) Size() int {
	return rl.buckets.ItemCount()
}
