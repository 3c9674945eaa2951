package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/session"
)

type fixture struct {
	store   *membership.MemoryStore
	codec   *auth.TokenCodec
	cookies *session.CookieStore
	tenant  *auth.Tenant
	owner   *auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := membership.NewMemoryStore()
	tenant, err := store.CreateTenant(ctx, "Smiths", "hash")
	require.NoError(t, err)

	owner, _, err := store.CreateMember(ctx, tenant.ID, membership.NewUser{
		Name:         "Ada",
		Login:        "ada",
		PasswordHash: "x",
		AvatarKey:    "avatars/ada.png",
	}, func(int) auth.Role { return auth.RoleOwner })
	require.NoError(t, err)

	codec, err := auth.NewTokenCodec("test-secret")
	require.NoError(t, err)

	return &fixture{
		store:   store,
		codec:   codec,
		cookies: session.NewCookieStore("session", false),
		tenant:  tenant,
		owner:   owner,
	}
}

func (f *fixture) request(t *testing.T, sub auth.Subject) *http.Request {
	t.Helper()
	token, err := f.codec.Sign(sub, false)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	return req
}

type avatarStub struct {
	err error
}

func (a avatarStub) URL(ctx context.Context, ref string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "https://cdn.example.com/" + ref, nil
}

func TestResolve_Success(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.cookies, f.codec, f.store, WithAvatars(avatarStub{}))

	id, err := r.Resolve(f.request(t, auth.Subject{UserID: f.owner.ID, TenantID: f.tenant.ID, Role: auth.RoleOwner}))
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, id.UserID)
	assert.Equal(t, "Ada", id.DisplayName)
	assert.Equal(t, "ada", id.Login)
	assert.Equal(t, auth.RoleOwner, id.Role)
	assert.Equal(t, f.tenant.ID, id.TenantID)
	assert.Equal(t, "Smiths", id.TenantName)
	assert.Equal(t, "https://cdn.example.com/avatars/ada.png", id.AvatarURL)
}

func TestResolve_UsesCurrentRoleNotTokenRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member, _, err := f.store.CreateMember(ctx, f.tenant.ID, membership.NewUser{
		Name: "Bob", Login: "bob", PasswordHash: "x",
	}, func(int) auth.Role { return auth.RoleMember })
	require.NoError(t, err)

	req := f.request(t, auth.Subject{UserID: member.ID, TenantID: f.tenant.ID, Role: auth.RoleMember})
	require.NoError(t, f.store.UpdateRole(ctx, f.tenant.ID, member.ID, auth.RoleAdmin))

	id, err := NewResolver(f.cookies, f.codec, f.store).Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, id.Role)
}

func TestResolve_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.cookies, f.codec, f.store)

	t.Run("no cookie", func(t *testing.T) {
		_, err := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "not.a.token"})
		_, err := r.Resolve(req)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("token for another secret", func(t *testing.T) {
		other, err := auth.NewTokenCodec("other-secret")
		require.NoError(t, err)
		token, err := other.Sign(auth.Subject{UserID: f.owner.ID, TenantID: f.tenant.ID, Role: auth.RoleOwner}, false)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
		_, err = r.Resolve(req)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := r.Resolve(f.request(t, auth.Subject{UserID: "ghost", TenantID: f.tenant.ID, Role: auth.RoleOwner}))
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		assert.False(t, IsStoreError(err))
	})

	t.Run("membership in another tenant", func(t *testing.T) {
		_, err := r.Resolve(f.request(t, auth.Subject{UserID: f.owner.ID, TenantID: "other-tenant", Role: auth.RoleOwner}))
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}

func TestResolve_RevokedMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member, _, err := f.store.CreateMember(ctx, f.tenant.ID, membership.NewUser{
		Name: "Bob", Login: "bob", PasswordHash: "x",
	}, func(int) auth.Role { return auth.RoleMember })
	require.NoError(t, err)

	req := f.request(t, auth.Subject{UserID: member.ID, TenantID: f.tenant.ID, Role: auth.RoleMember})
	_, ok := f.codec.Verify(mustCookie(t, req))
	require.True(t, ok)

	require.NoError(t, f.store.RemoveMember(ctx, f.tenant.ID, member.ID))

	_, err = NewResolver(f.cookies, f.codec, f.store).Resolve(req)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func mustCookie(t *testing.T, r *http.Request) string {
	t.Helper()
	c, err := r.Cookie("session")
	require.NoError(t, err)
	return c.Value
}

type failingReader struct {
	Reader
	err error
}

func (f failingReader) Membership(ctx context.Context, userID, tenantID string) (*auth.Membership, error) {
	return nil, f.err
}

func TestResolve_StoreError(t *testing.T) {
	f := newFixture(t)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	r := NewResolver(f.cookies, f.codec, failingReader{Reader: f.store, err: errors.New("connection refused")},
		WithMetrics(metrics))

	_, err := r.Resolve(f.request(t, auth.Subject{UserID: f.owner.ID, TenantID: f.tenant.ID, Role: auth.RoleOwner}))
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.NotErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Contains(t, err.Error(), "membership lookup")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthResolutionsTotal.WithLabelValues(OutcomeStoreError)))
}

type slowReader struct {
	Reader
}

func (s slowReader) UserByID(ctx context.Context, id string) (*auth.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolve_TimeoutFailsClosed(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.cookies, f.codec, slowReader{Reader: f.store}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := r.Resolve(f.request(t, auth.Subject{UserID: f.owner.ID, TenantID: f.tenant.ID, Role: auth.RoleOwner}))
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_AvatarFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.cookies, f.codec, f.store, WithAvatars(avatarStub{err: errors.New("s3 down")}))

	id, err := r.Resolve(f.request(t, auth.Subject{UserID: f.owner.ID, TenantID: f.tenant.ID, Role: auth.RoleOwner}))
	require.NoError(t, err)
	assert.Empty(t, id.AvatarURL)
}
