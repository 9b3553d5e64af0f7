package httpapi

import (
	"net/http"
	"sync"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"

	"golang.org/x/time/rate"
)

// maxLimiters caps the per-key map; past it the map is reset.
const maxLimiters = 10000

// RateLimiter applies a token bucket per caller, falling back to the remote
// address for anonymous requests. It must run after Authenticator.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewRateLimiter(requestsPerSecond, burst int, log logger.Logger) *RateLimiter {
	l := logger.ForComponent(log, "ratelimit")
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		errors:   apperrors.NewErrorHandler(l),
		logger:   l,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := CallerFrom(r.Context()).ID
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.getLimiter(key).Allow() {
			rl.errors.Write(w, r, apperrors.NewRateLimitedError(key))
			return
		}
		next.ServeHTTP(w, r)
	})
}
