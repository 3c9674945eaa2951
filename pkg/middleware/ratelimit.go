package middleware

import (
	"fmt"
	"math"
	"net/http"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/ratelimit"
)

// MsgRateLimited is the message of a 429 response
const MsgRateLimited = "Too many requests, please try again later"

// Throttle applies rate limiters to requests
type Throttle struct {
	failOpen bool
	logger   *observability.Logger
}

// NewThrottle creates a throttle. With failOpen set, requests proceed when
// the counter store is unavailable; otherwise they get 500.
func NewThrottle(failOpen bool, logger *observability.Logger) *Throttle {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Throttle{failOpen: failOpen, logger: logger}
}

// ApplyRateLimit checks limiter for key with a fail-closed throttle
func ApplyRateLimit(w http.ResponseWriter, r *http.Request, limiter *ratelimit.Limiter, key string) bool {
	return NewThrottle(false, nil).Apply(w, r, limiter, key)
}

// Apply records a hit for key. It returns true when the caller may proceed;
// otherwise a response has been written.
func (t *Throttle) Apply(w http.ResponseWriter, r *http.Request, limiter *ratelimit.Limiter, key string) bool {
	d, err := limiter.Check(r.Context(), key)
	if err != nil {
		logger := observability.FromContext(r.Context(), t.logger).
			WithError(err).
			WithField("limiter", limiter.Name())
		if t.failOpen {
			logger.Warn("rate limit check failed, allowing request")
			return true
		}
		logger.Error("rate limit check failed")
		httputil.WriteInternalError(w)
		return false
	}

	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))

	if !d.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(d.RetryAfter.Seconds())))
		httputil.WriteCode(w, httputil.CodeRateLimitExceeded, MsgRateLimited)
		return false
	}
	return true
}

// ByIP limits a plain handler by client address
func (t *Throttle) ByIP(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.Apply(w, r, limiter, ratelimit.IPKey(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByUser limits an authenticated handler by the caller's user ID
func (t *Throttle) ByUser(limiter *ratelimit.Limiter, h Handler) Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
		if !t.Apply(w, r, limiter, ratelimit.UserKey(id.UserID)) {
			return
		}
		h.ServeAuthenticated(w, r, id)
	})
}
