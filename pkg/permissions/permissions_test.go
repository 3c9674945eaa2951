package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/larder/pkg/auth"
)

func identityWith(id string, role auth.Role) *auth.Identity {
	return &auth.Identity{UserID: id, TenantID: "t1", Role: role}
}

func TestCanRemoveMember(t *testing.T) {
	owner := identityWith("owner", auth.RoleOwner)
	admin := identityWith("admin", auth.RoleAdmin)
	member := identityWith("member", auth.RoleMember)

	tests := []struct {
		name   string
		actor  *auth.Identity
		target MemberTarget
		want   Decision
	}{
		{"owner removes self", owner, MemberTarget{UserID: "owner", Role: auth.RoleOwner}, Decision{Reason: CannotRemoveSelf}},
		{"admin removes self", admin, MemberTarget{UserID: "admin", Role: auth.RoleAdmin}, Decision{Reason: CannotRemoveSelf}},
		{"member removes self", member, MemberTarget{UserID: "member", Role: auth.RoleMember}, Decision{Reason: CannotRemoveSelf}},
		{"admin removes owner", admin, MemberTarget{UserID: "owner", Role: auth.RoleOwner}, Decision{Reason: CannotRemoveOwner}},
		{"member removes other", member, MemberTarget{UserID: "x", Role: auth.RoleMember}, Decision{Reason: NotAdmin}},
		{"member removes owner", member, MemberTarget{UserID: "owner", Role: auth.RoleOwner}, Decision{Reason: NotAdmin}},
		{"owner removes admin", owner, MemberTarget{UserID: "admin", Role: auth.RoleAdmin}, Decision{Allowed: true}},
		{"admin removes member", admin, MemberTarget{UserID: "member", Role: auth.RoleMember}, Decision{Allowed: true}},
		{"admin removes admin", admin, MemberTarget{UserID: "admin2", Role: auth.RoleAdmin}, Decision{Allowed: true}},
		{"no identity", nil, MemberTarget{UserID: "x"}, Decision{Reason: NoIdentity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanRemoveMember(tt.actor, tt.target))
		})
	}
}

func TestCanDeleteComment(t *testing.T) {
	member := identityWith("m1", auth.RoleMember)

	assert.True(t, CanDeleteComment(member, Comment{AuthorID: "m1"}).Allowed)

	d := CanDeleteComment(member, Comment{AuthorID: "m2"})
	assert.False(t, d.Allowed)
	assert.Equal(t, NotAuthor, d.Reason)

	assert.True(t, CanDeleteComment(identityWith("a", auth.RoleAdmin), Comment{AuthorID: "m2"}).Allowed)
	assert.True(t, CanDeleteComment(identityWith("o", auth.RoleOwner), Comment{AuthorID: "m2"}).Allowed)
	assert.False(t, CanDeleteComment(identityWith("", auth.RoleMember), Comment{}).Allowed)
	assert.False(t, CanDeleteComment(nil, Comment{AuthorID: "m1"}).Allowed)
}

func TestCanEditPost(t *testing.T) {
	assert.True(t, CanEditPost(identityWith("m1", auth.RoleMember), "m1").Allowed)
	assert.False(t, CanEditPost(identityWith("m1", auth.RoleMember), "m2").Allowed)
	assert.True(t, CanEditPost(identityWith("a1", auth.RoleAdmin), "m2").Allowed)
}

func TestCanChangeRole(t *testing.T) {
	owner := identityWith("owner", auth.RoleOwner)

	tests := []struct {
		name   string
		actor  *auth.Identity
		target MemberTarget
		next   auth.Role
		want   Decision
	}{
		{"owner promotes member", owner, MemberTarget{UserID: "m", Role: auth.RoleMember}, auth.RoleAdmin, Decision{Allowed: true}},
		{"owner demotes admin", owner, MemberTarget{UserID: "a", Role: auth.RoleAdmin}, auth.RoleMember, Decision{Allowed: true}},
		{"owner changes self", owner, MemberTarget{UserID: "owner", Role: auth.RoleOwner}, auth.RoleMember, Decision{Reason: CannotChangeSelf}},
		{"owner targets another owner", owner, MemberTarget{UserID: "o2", Role: auth.RoleOwner}, auth.RoleMember, Decision{Reason: CannotChangeOwner}},
		{"owner grants owner", owner, MemberTarget{UserID: "m", Role: auth.RoleMember}, auth.RoleOwner, Decision{Reason: InvalidRole}},
		{"owner grants unknown role", owner, MemberTarget{UserID: "m", Role: auth.RoleMember}, auth.Role("superuser"), Decision{Reason: InvalidRole}},
		{"admin changes role", identityWith("a", auth.RoleAdmin), MemberTarget{UserID: "m", Role: auth.RoleMember}, auth.RoleAdmin, Decision{Reason: NotOwner}},
		{"member changes role", identityWith("m", auth.RoleMember), MemberTarget{UserID: "x", Role: auth.RoleMember}, auth.RoleAdmin, Decision{Reason: NotOwner}},
		{"no identity", nil, MemberTarget{UserID: "m"}, auth.RoleAdmin, Decision{Reason: NoIdentity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanChangeRole(tt.actor, tt.target, tt.next))
		})
	}
}

func TestIsOwnerOrAdmin(t *testing.T) {
	assert.True(t, IsOwnerOrAdmin(identityWith("o", auth.RoleOwner)))
	assert.True(t, IsOwnerOrAdmin(identityWith("a", auth.RoleAdmin)))
	assert.False(t, IsOwnerOrAdmin(identityWith("m", auth.RoleMember)))
	assert.False(t, IsOwnerOrAdmin(nil))
}

func TestReasonMessages(t *testing.T) {
	for _, r := range []Reason{NotAdmin, NotOwner, NotAuthor, CannotRemoveSelf, CannotRemoveOwner, CannotChangeSelf, CannotChangeOwner, InvalidRole, NoIdentity} {
		assert.NotEqual(t, "Insufficient permissions", r.Message(), string(r))
	}
	assert.Equal(t, "Insufficient permissions", Reason("OTHER").Message())
}
