package membership

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/larder/pkg/auth"
)

var (
	// ErrNotFound is returned when a user, tenant or membership does not exist
	ErrNotFound = errors.New("membership: not found")

	// ErrLoginTaken is returned when a login name is already registered
	ErrLoginTaken = errors.New("membership: login already taken")

	// ErrAlreadyMember is returned when a user already belongs to the tenant
	ErrAlreadyMember = errors.New("membership: already a member")

	// ErrSoleOwner is returned when a change would leave a tenant without an owner
	ErrSoleOwner = errors.New("membership: tenant must keep an owner")
)

// NewUser is the input for creating an account
type NewUser struct {
	Name         string
	Login        string
	PasswordHash string
	AvatarKey    string
}

// Member is a membership joined with its user
type Member struct {
	auth.Membership
	Name      string `json:"name"`
	Login     string `json:"emailOrUsername"`
	AvatarKey string `json:"-"`
}

// JoinedAt returns when the user joined the tenant
func (m Member) JoinedAt() time.Time {
	return m.CreatedAt
}

// RoleAssigner picks the role of a new member given how many members the
// tenant already has. It runs inside the creating transaction.
type RoleAssigner func(existingMembers int) auth.Role

// Store is the persistence contract for accounts and memberships
type Store interface {
	UserByID(ctx context.Context, id string) (*auth.User, error)
	UserByLogin(ctx context.Context, login string) (*auth.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	Tenant(ctx context.Context, id string) (*auth.Tenant, error)
	// DefaultTenant returns the oldest tenant
	DefaultTenant(ctx context.Context) (*auth.Tenant, error)
	CreateTenant(ctx context.Context, name, secretHash string) (*auth.Tenant, error)
	UpdateTenant(ctx context.Context, id, name, secretHash string) error

	Membership(ctx context.Context, userID, tenantID string) (*auth.Membership, error)
	MembershipsForUser(ctx context.Context, userID string) ([]auth.Membership, error)
	ListMembers(ctx context.Context, tenantID string) ([]Member, error)

	// CreateMember creates a user and its membership atomically. The role
	// comes from assign, evaluated against the member count seen inside the
	// same serialized transaction.
	CreateMember(ctx context.Context, tenantID string, user NewUser, assign RoleAssigner) (*auth.User, *auth.Membership, error)
	UpdateRole(ctx context.Context, tenantID, userID string, role auth.Role) error
	RemoveMember(ctx context.Context, tenantID, userID string) error
}
