package auth

import (
	"fmt"
	"time"
)

// Role is a member's role inside a family space
type Role string

const (
	RoleOwner  Role = "owner"  // Created the space, cannot be removed
	RoleAdmin  Role = "admin"  // Manages members and content
	RoleMember Role = "member" // Regular participant
)

// Roles lists every valid role in privilege order
var Roles = []Role{RoleOwner, RoleAdmin, RoleMember}

// ParseRole converts a string into a Role, rejecting anything outside the set
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsAdmin reports whether the role may manage members and moderate content
func (r Role) IsAdmin() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember:
		return false
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Login        string    `json:"emailOrUsername"`
	PasswordHash string    `json:"-"`
	AvatarKey    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tenant is a family space. SecretHash is the bcrypt hash of the master key.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Membership links a user to a tenant with a role.
// There is at most one membership per (UserID, TenantID).
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TenantID  string    `json:"familySpaceId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is the resolved caller of a request. Role comes from the current
// membership row, not from the token.
type Identity struct {
	UserID      string `json:"id"`
	DisplayName string `json:"name"`
	Login       string `json:"emailOrUsername"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        Role   `json:"role"`
	TenantID    string `json:"familySpaceId"`
	TenantName  string `json:"familySpaceName"`
}

// HasRole reports whether the identity holds any of the given roles
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
