package middleware

import (
	"net/http"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/identity"
	"github.com/platinummonkey/larder/pkg/observability"
)

// Messages returned to clients. They never say which check failed.
const (
	MsgUnauthenticated = "Not authenticated"
	MsgForbidden       = "Insufficient permissions"
)

// Handler serves a request on behalf of a resolved identity
type Handler interface {
	ServeAuthenticated(w http.ResponseWriter, r *http.Request, id *auth.Identity)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// ServeAuthenticated calls f(w, r, id)
func (f HandlerFunc) ServeAuthenticated(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	f(w, r, id)
}

// IdentityResolver resolves the caller of a request
type IdentityResolver interface {
	Resolve(r *http.Request) (*auth.Identity, error)
}

// Gate wraps handlers with authentication and role checks
type Gate struct {
	resolver IdentityResolver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewGate creates a gate over a resolver
func NewGate(resolver IdentityResolver, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gate{
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
}

// RequireAuth runs h only for requests with a resolvable identity
func (g *Gate) RequireAuth(h Handler) http.Handler {
	return g.require(nil, h)
}

// RequireRole runs h only when the caller's current role is one of roles
func (g *Gate) RequireRole(roles []auth.Role, h Handler) http.Handler {
	allowed := make([]auth.Role, len(roles))
	copy(allowed, roles)
	return g.require(allowed, h)
}

// Authenticate is RequireAuth in router middleware form. Downstream handlers
// read the identity with IdentityFrom.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return g.RequireAuth(HandlerFunc(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
		next.ServeHTTP(w, r)
	}))
}

func (g *Gate) require(roles []auth.Role, h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.resolver.Resolve(r)
		if err != nil {
			if identity.IsStoreError(err) {
				g.metrics.RecordAuthzDenial("store_error")
				httputil.WriteInternalError(w)
				return
			}
			g.metrics.RecordAuthzDenial("unauthenticated")
			httputil.WriteUnauthorized(w, MsgUnauthenticated)
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), id)
		r = r.WithContext(ctx)

		if roles != nil && !id.HasRole(roles...) {
			g.metrics.RecordAuthzDenial("role")
			observability.FromContext(ctx, g.logger).
				WithField("role", id.Role.String()).
				WithField("path", r.URL.Path).
				Debug("role check denied")
			httputil.WriteForbidden(w, MsgForbidden)
			return
		}

		h.ServeAuthenticated(w, r, id)
	})
}

// IdentityFrom returns the identity stored by the gate, or nil
func IdentityFrom(r *http.Request) *auth.Identity {
	return contextkeys.GetIdentity(r.Context())
}
