// Package identity resolves the caller of a request from its session token.
//
// Resolution re-reads the user, the membership for the token's tenant and
// the tenant itself on every request, so removing a membership or changing a
// role takes effect without reissuing tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/avatar"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
)

const tracerName = "github.com/platinummonkey/larder/pkg/identity"

// DefaultTimeout bounds the store lookups of a single resolution
const DefaultTimeout = 3 * time.Second

// Outcomes recorded in the auth resolution metric
const (
	OutcomeResolved   = "resolved"
	OutcomeNoToken    = "no_token"
	OutcomeInvalid    = "invalid_token"
	OutcomeRevoked    = "revoked"
	OutcomeStoreError = "store_error"
)

// StoreError wraps an unexpected failure of the membership store. Callers
// must fail closed on it but may log it, unlike auth.ErrUnauthenticated.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("identity: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err carries a StoreError
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// TokenSource extracts the raw session token from a request
type TokenSource interface {
	Token(r *http.Request) (string, bool)
}

// TokenVerifier verifies a session token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, bool)
}

// Reader is the part of membership.Store needed for resolution
type Reader interface {
	UserByID(ctx context.Context, id string) (*auth.User, error)
	Membership(ctx context.Context, userID, tenantID string) (*auth.Membership, error)
	Tenant(ctx context.Context, id string) (*auth.Tenant, error)
}

// Resolver turns a request into an Identity
type Resolver struct {
	tokens  TokenSource
	codec   TokenVerifier
	store   Reader
	avatars avatar.Resolver
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Resolver
type Option func(*Resolver)

// WithTimeout bounds the store lookups. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithAvatars sets the avatar URL resolver
func WithAvatars(a avatar.Resolver) Option {
	return func(r *Resolver) {
		r.avatars = a
	}
}

// WithLogger sets the fallback logger
func WithLogger(l *observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithMetrics records resolution outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver
func NewResolver(tokens TokenSource, codec TokenVerifier, store Reader, opts ...Option) *Resolver {
	r := &Resolver{
		tokens:  tokens,
		codec:   codec,
		store:   store,
		avatars: avatar.Passthrough{},
		timeout: DefaultTimeout,
		logger:  observability.NopLogger(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the identity of the caller. It returns an error wrapping
// auth.ErrUnauthenticated when there is no valid session and a *StoreError
// when the store could not answer.
func (r *Resolver) Resolve(req *http.Request) (*auth.Identity, error) {
	ctx, span := r.tracer.Start(req.Context(), "identity.resolve")
	defer span.End()

	id, outcome, err := r.resolve(ctx, req)
	r.metrics.RecordAuthResolution(outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))

	if err != nil {
		if IsStoreError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store error")
			observability.FromContext(ctx, r.logger).WithError(err).Error("identity resolution failed")
		}
		return nil, err
	}
	return id, nil
}

func (r *Resolver) resolve(ctx context.Context, req *http.Request) (*auth.Identity, string, error) {
	token, ok := r.tokens.Token(req)
	if !ok {
		return nil, OutcomeNoToken, auth.ErrUnauthenticated
	}

	claims, ok := r.codec.Verify(token)
	if !ok {
		return nil, OutcomeInvalid, auth.ErrUnauthenticated
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	user, err := r.store.UserByID(ctx, claims.UserID)
	if err != nil {
		return lookupFailed(err, "user lookup")
	}

	m, err := r.store.Membership(ctx, claims.UserID, claims.TenantID)
	if err != nil {
		return lookupFailed(err, "membership lookup")
	}

	tenant, err := r.store.Tenant(ctx, m.TenantID)
	if err != nil {
		return lookupFailed(err, "tenant lookup")
	}

	id := &auth.Identity{
		UserID:      user.ID,
		DisplayName: user.Name,
		Login:       user.Login,
		Role:        m.Role,
		TenantID:    tenant.ID,
		TenantName:  tenant.Name,
	}

	if user.AvatarKey != "" {
		url, err := r.avatars.URL(ctx, user.AvatarKey)
		if err != nil {
			// A missing avatar never blocks authentication
			observability.FromContext(ctx, r.logger).
				WithError(err).
				WithField("user_id", user.ID).
				Warn("failed to resolve avatar")
		} else {
			id.AvatarURL = url
		}
	}

	return id, OutcomeResolved, nil
}

// lookupFailed maps a store error to the resolution result. A missing row
// means the session was revoked.
func lookupFailed(err error, op string) (*auth.Identity, string, error) {
	if errors.Is(err, membership.ErrNotFound) {
		return nil, OutcomeRevoked, auth.ErrUnauthenticated
	}
	return nil, OutcomeStoreError, &StoreError{Op: op, Err: err}
}
