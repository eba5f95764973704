package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit counts requests per client in fixed one-minute windows aligned
// to the clock, so every API replica shares the same counter key.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit applies rate limiting to the client recorded by the auth middleware.
// A cache failure lets the request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := GetClient(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		windowStart := rl.now().Truncate(rateWindow)
		windowEnd := windowStart.Add(rateWindow)
		// The key outlives its window slightly so a late INCR cannot
		// recreate it without an expiry.
		count, err := rl.cache.IncrWithExpiry(r.Context(),
			cache.RateLimitKey(client, windowStart.Unix()), 2*rateWindow)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int(windowEnd.Sub(rl.now()).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
