// Package middleware gates HTTP handlers behind authentication, roles and
// rate limits.
//
// # Authorization
//
// Business handlers that need a caller implement Handler and receive the
// resolved identity. Gate wraps them:
//
//	gate := middleware.NewGate(resolver, logger, metrics)
//	router.Handle("/auth/me", gate.RequireAuth(middleware.HandlerFunc(me)))
//	router.Handle("/family/members/{userId}",
//		gate.RequireRole([]auth.Role{auth.RoleOwner, auth.RoleAdmin}, middleware.HandlerFunc(remove)))
//
// The wrapped handler never runs unless resolution succeeds (and, for
// RequireRole, the caller's current role is in the set). Failures answer
// 401 UNAUTHORIZED, 403 FORBIDDEN or, when the store fails, 500
// INTERNAL_ERROR.
//
// # Rate Limiting
//
// ApplyRateLimit checks a named limiter before the handler body runs and
// writes 429 RATE_LIMIT_EXCEEDED with a Retry-After header when the key is
// over budget:
//
//	if !throttle.Apply(w, r, limiters.MustGet(ratelimit.Login), ratelimit.IPKey(r)) {
//		return
//	}
//
// Counter failures fail closed (500) unless the Throttle is built with
// fail-open enabled.
//
// # Related Packages
//
//   - pkg/identity: request to identity resolution
//   - pkg/ratelimit: fixed-window counters
//   - pkg/permissions: fine-grained checks inside handlers
package middleware
