package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
)

// DefaultTenantName is used when no family name is configured
const DefaultTenantName = "Family"

// TenantStore is the part of membership.Store used for bootstrapping
type TenantStore interface {
	DefaultTenant(ctx context.Context) (*auth.Tenant, error)
	CreateTenant(ctx context.Context, name, secretHash string) (*auth.Tenant, error)
	UpdateTenant(ctx context.Context, id, name, secretHash string) error
}

// Gate owns the tenant record and the master key
type Gate struct {
	store  TenantStore
	secret *SharedSecret
	name   string
	logger *observability.Logger
}

// NewGate creates a bootstrap gate
func NewGate(store TenantStore, secret *SharedSecret, name string, logger *observability.Logger) *Gate {
	if name == "" {
		name = DefaultTenantName
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gate{
		store:  store,
		secret: secret,
		name:   name,
		logger: logger,
	}
}

// EnsureTenant creates the tenant if none exists. An existing tenant whose
// name or secret hash differs from the configuration is updated in place,
// which is how the master key is rotated.
func (g *Gate) EnsureTenant(ctx context.Context) (*auth.Tenant, error) {
	tenant, err := g.store.DefaultTenant(ctx)
	if errors.Is(err, membership.ErrNotFound) {
		hash, err := g.secret.Hash()
		if err != nil {
			return nil, err
		}
		tenant, err = g.store.CreateTenant(ctx, g.name, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to create tenant: %w", err)
		}
		g.logger.WithField("tenant_id", tenant.ID).Info("created family space")
		return tenant, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	secretChanged := !g.secret.Matches(tenant.SecretHash)
	if !secretChanged && tenant.Name == g.name {
		return tenant, nil
	}

	hash := tenant.SecretHash
	if secretChanged {
		if hash, err = g.secret.Hash(); err != nil {
			return nil, err
		}
	}
	if err := g.store.UpdateTenant(ctx, tenant.ID, g.name, hash); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	g.logger.WithFields(map[string]interface{}{
		"tenant_id":      tenant.ID,
		"secret_rotated": secretChanged,
	}).Info("updated family space")

	tenant.Name = g.name
	tenant.SecretHash = hash
	return tenant, nil
}

// Verify checks a candidate master key against the tenant's stored hash
func (g *Gate) Verify(tenant *auth.Tenant, candidate string) bool {
	if tenant == nil {
		return false
	}
	return VerifySharedSecret(candidate, tenant.SecretHash)
}

// FirstMemberOwns grants owner to the first member of a tenant and member
// to everyone after. The store evaluates it inside the creating transaction.
func FirstMemberOwns(existingMembers int) auth.Role {
	if existingMembers == 0 {
		return auth.RoleOwner
	}
	return auth.RoleMember
}

var _ membership.RoleAssigner = FirstMemberOwns
