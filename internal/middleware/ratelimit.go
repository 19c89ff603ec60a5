package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/httputil"
	"github.com/satsjar/satsjar/internal/logging"
)

// Tier is one rate limit bucket: n requests per window.
type Tier struct {
	Requests int
	Window   time.Duration
}

func (t Tier) limit() rate.Limit {
	return rate.Limit(float64(t.Requests) / t.Window.Seconds())
}

// RateLimiter throttles requests per caller IP. It runs ahead of
// authentication, so over-limit requests are rejected before any token or
// body processing; authentication endpoints get a tighter tier than the
// rest of the API.
type RateLimiter struct {
	authTier Tier
	apiTier  Tier
	logger   *logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter with the given tiers.
func NewRateLimiter(authTier, apiTier Tier, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{
		authTier: authTier,
		apiTier:  apiTier,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/api/auth/")
}

func (rl *RateLimiter) getLimiter(key string, tier Tier) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(tier.limit(), tier.Requests)
		rl.limiters[key] = limiter
	}
	return limiter
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Handler returns the rate limiting middleware handler. Requests over the
// limit are rejected before any body processing.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := rl.apiTier
		keyPrefix := "api:"
		if isAuthPath(r.URL.Path) {
			tier = rl.authTier
			keyPrefix = "auth:"
		}

		key := keyPrefix + clientKey(r)
		if !rl.getLimiter(key, tier).Allow() {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})

			serviceErr := errors.RateLimitExceeded(tier.Requests, tier.Window.String())
			httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops accumulated limiters so the map cannot grow without bound.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on the given interval.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.Cleanup()
		}
	}()
}
