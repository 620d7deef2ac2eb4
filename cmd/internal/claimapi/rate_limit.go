package claimapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// NewMemoryLimiter allows tokens requests per interval per key.
func NewMemoryLimiter(tokens int, interval time.Duration) (limiter.Store, error) {
	return memorystore.New(&memorystore.Config{
		Tokens:   uint64(tokens),
		Interval: interval,
	})
}

// rateLimit throttles by server-observed client IP.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := ipString(clientIP(r, h.cfg.TrustProxy))
		if key == "" {
			key = "unknown"
		}
		limit, remaining, reset, ok, err := h.limiter.Take(r.Context(), key)
		if err != nil {
			// Fail open.
			h.log.WarnContext(r.Context(), "claim.ratelimit.fail", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatUint(limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatUint(remaining, 10))
		if !ok {
			writeRateLimited(w, time.Until(time.Unix(0, int64(reset))))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds())+1, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
}
