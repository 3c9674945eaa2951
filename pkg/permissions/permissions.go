// Package permissions holds the ownership and role rules for member and
// content mutations.
//
// Every predicate is pure: callers pass the acting identity and the target
// data they already loaded, and get back a Decision. A denied Decision
// carries a Reason whose Message is safe to show to the client.
package permissions

import (
	"github.com/platinummonkey/larder/pkg/auth"
)

// Reason explains a denial
type Reason string

const (
	NotAdmin          Reason = "NOT_ADMIN"
	NotOwner          Reason = "NOT_OWNER"
	NotAuthor         Reason = "NOT_AUTHOR"
	CannotRemoveSelf  Reason = "CANNOT_REMOVE_SELF"
	CannotRemoveOwner Reason = "CANNOT_REMOVE_OWNER"
	CannotChangeSelf  Reason = "CANNOT_CHANGE_SELF"
	CannotChangeOwner Reason = "CANNOT_CHANGE_OWNER"
	InvalidRole       Reason = "INVALID_ROLE"
	NoIdentity        Reason = "NO_IDENTITY"
)

// Message returns the client-facing text for the reason
func (r Reason) Message() string {
	switch r {
	case NotAdmin:
		return "Only owners and admins can do this"
	case NotOwner:
		return "Only the owner can do this"
	case NotAuthor:
		return "You can only change your own content"
	case CannotRemoveSelf:
		return "You cannot remove yourself"
	case CannotRemoveOwner:
		return "The owner cannot be removed"
	case CannotChangeSelf:
		return "You cannot change your own role"
	case CannotChangeOwner:
		return "The owner's role cannot be changed"
	case InvalidRole:
		return "Invalid role"
	case NoIdentity:
		return "Not authenticated"
	}
	return "Insufficient permissions"
}

// Decision is the result of a predicate. Reason is empty when Allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(r Reason) Decision {
	return Decision{Reason: r}
}

// MemberTarget describes the member a mutation applies to
type MemberTarget struct {
	UserID string
	Role   auth.Role
}

// Comment describes a comment being deleted
type Comment struct {
	AuthorID string
}

// IsOwnerOrAdmin reports whether the identity manages the tenant
func IsOwnerOrAdmin(actor *auth.Identity) bool {
	return actor != nil && actor.Role.IsAdmin()
}

// CanRemoveMember decides whether actor may remove target from the tenant.
// Self-removal is reported before the role check so an actor removing
// themselves always sees CANNOT_REMOVE_SELF.
func CanRemoveMember(actor *auth.Identity, target MemberTarget) Decision {
	if actor == nil {
		return deny(NoIdentity)
	}
	if target.UserID == actor.UserID {
		return deny(CannotRemoveSelf)
	}
	if !IsOwnerOrAdmin(actor) {
		return deny(NotAdmin)
	}
	if target.Role == auth.RoleOwner {
		return deny(CannotRemoveOwner)
	}
	return allow()
}

// CanDeleteComment allows owners, admins and the comment's author
func CanDeleteComment(actor *auth.Identity, c Comment) Decision {
	if actor == nil {
		return deny(NoIdentity)
	}
	if IsOwnerOrAdmin(actor) || (c.AuthorID != "" && c.AuthorID == actor.UserID) {
		return allow()
	}
	return deny(NotAuthor)
}

// CanEditPost allows owners, admins and the post's author
func CanEditPost(actor *auth.Identity, authorID string) Decision {
	return CanDeleteComment(actor, Comment{AuthorID: authorID})
}

// CanChangeRole decides whether actor may give target the role next.
// Only the owner changes roles, never their own, and the owner's role is
// fixed. Promoting someone to owner is not supported.
func CanChangeRole(actor *auth.Identity, target MemberTarget, next auth.Role) Decision {
	if actor == nil {
		return deny(NoIdentity)
	}

	if actor.Role != auth.RoleOwner {
		return deny(NotOwner)
	}

	if target.UserID == actor.UserID {
		return deny(CannotChangeSelf)
	}
	if target.Role == auth.RoleOwner {
		return deny(CannotChangeOwner)
	}

	switch next {
	case auth.RoleAdmin, auth.RoleMember:
		return allow()
	default:
		return deny(InvalidRole)
	}
}
