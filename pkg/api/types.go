package api

import (
	"time"

	"github.com/platinummonkey/larder/pkg/auth"
)

// UserResponse wraps the caller for /auth endpoints
type UserResponse struct {
	User *auth.Identity `json:"user"`
}

// MemberResponse is one entry of the member list
type MemberResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	EmailOrUsername string    `json:"emailOrUsername"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	Role            auth.Role `json:"role"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// MembersResponse is the body of GET /family/members
type MembersResponse struct {
	Members []MemberResponse `json:"members"`
}

// ChangePasswordRequest is the body of PUT /me/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangeRoleRequest is the body of PATCH /family/members/{userId}/role
type ChangeRoleRequest struct {
	Role string `json:"role"`
}
