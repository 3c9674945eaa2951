package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/audit"
	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/avatar"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/permissions"
)

// MemberHandlers serves the family member endpoints
type MemberHandlers struct {
	store   membership.Store
	avatars avatar.Resolver
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMemberHandlers creates the member handlers
func NewMemberHandlers(store membership.Store, avatars avatar.Resolver, trail audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *MemberHandlers {
	if avatars == nil {
		avatars = avatar.Passthrough{}
	}
	if trail == nil {
		trail = audit.Nop()
	}
	return &MemberHandlers{
		store:   store,
		avatars: avatars,
		audit:   trail,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterRoutes registers member routes
func (h *MemberHandlers) RegisterRoutes(router *mux.Router, gate *middleware.Gate) {
	router.Handle("/family/members", gate.RequireAuth(middleware.HandlerFunc(h.list))).Methods("GET")
	// Removal is decided by CanRemoveMember so self-removal reports its own reason
	router.Handle("/family/members/{userId}", gate.RequireAuth(middleware.HandlerFunc(h.remove))).Methods("DELETE")
	router.Handle("/family/members/{userId}/role", gate.RequireRole([]auth.Role{auth.RoleOwner}, middleware.HandlerFunc(h.changeRole))).Methods("PATCH")
}

// list handles GET /family/members
func (h *MemberHandlers) list(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	members, err := h.store.ListMembers(r.Context(), id.TenantID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := MembersResponse{Members: make([]MemberResponse, 0, len(members))}
	for _, m := range members {
		url, err := h.avatars.URL(r.Context(), m.AvatarKey)
		if err != nil {
			observability.FromContext(r.Context(), h.logger).
				WithError(err).
				WithField("member_id", m.UserID).
				Warn("failed to resolve avatar")
		}
		resp.Members = append(resp.Members, MemberResponse{
			ID:              m.UserID,
			Name:            m.Name,
			EmailOrUsername: m.Login,
			AvatarURL:       url,
			Role:            m.Role,
			JoinedAt:        m.JoinedAt(),
		})
	}
	_ = httputil.WriteSuccess(w, resp)
}

// target loads the member addressed by the {userId} path parameter within
// the caller's tenant. It writes the response and returns nil on failure.
func (h *MemberHandlers) target(w http.ResponseWriter, r *http.Request, id *auth.Identity) *auth.Membership {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return nil
	}
	m, err := h.store.Membership(r.Context(), userID, id.TenantID)
	if errors.Is(err, membership.ErrNotFound) {
		httputil.WriteNotFound(w, "Member not found")
		return nil
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil
	}
	return m
}

func (h *MemberHandlers) denied(w http.ResponseWriter, r *http.Request, id *auth.Identity, target string, d permissions.Decision) {
	h.metrics.RecordAuthzDenial(string(d.Reason))

	event := audit.FromRequest(r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).WithActor(id)
	event.TargetUserID = target
	event.Message = string(d.Reason)
	audit.Record(r.Context(), h.audit, h.logger, event)

	if d.Reason == permissions.InvalidRole {
		httputil.WriteValidationError(w, d.Reason.Message())
		return
	}
	httputil.WriteForbidden(w, d.Reason.Message())
}

// remove handles DELETE /family/members/{userId}
func (h *MemberHandlers) remove(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	// Refuse before the lookup so plain members learn nothing about user IDs
	if userID, err := httputil.ParsePathString(r, "userId"); err == nil {
		if d := permissions.CanRemoveMember(id, permissions.MemberTarget{UserID: userID}); !d.Allowed {
			h.denied(w, r, id, userID, d)
			return
		}
	}

	m := h.target(w, r, id)
	if m == nil {
		return
	}

	if d := permissions.CanRemoveMember(id, permissions.MemberTarget{UserID: m.UserID, Role: m.Role}); !d.Allowed {
		h.denied(w, r, id, m.UserID, d)
		return
	}

	if err := h.store.RemoveMember(r.Context(), id.TenantID, m.UserID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event := audit.FromRequest(r, audit.EventTypeMemberRemove, audit.EventStatusSuccess).WithActor(id)
	event.TargetUserID = m.UserID
	event.Metadata = map[string]interface{}{"role": m.Role.String()}
	audit.Record(r.Context(), h.audit, h.logger, event)

	observability.FromContext(r.Context(), h.logger).
		WithField("member_id", m.UserID).
		Info("member removed")
	_ = httputil.WriteMessage(w, "Member removed successfully")
}

// changeRole handles PATCH /family/members/{userId}/role
func (h *MemberHandlers) changeRole(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req ChangeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m := h.target(w, r, id)
	if m == nil {
		return
	}

	// An unknown role string becomes an invalid Role, which the predicate rejects
	next := auth.Role(req.Role)
	if d := permissions.CanChangeRole(id, permissions.MemberTarget{UserID: m.UserID, Role: m.Role}, next); !d.Allowed {
		h.denied(w, r, id, m.UserID, d)
		return
	}

	if err := h.store.UpdateRole(r.Context(), id.TenantID, m.UserID, next); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event := audit.FromRequest(r, audit.EventTypeMemberRoleChange, audit.EventStatusSuccess).WithActor(id)
	event.TargetUserID = m.UserID
	event.Metadata = map[string]interface{}{"from": m.Role.String(), "to": next.String()}
	audit.Record(r.Context(), h.audit, h.logger, event)

	observability.FromContext(r.Context(), h.logger).WithFields(map[string]interface{}{
		"member_id": m.UserID,
		"role":      next.String(),
	}).Info("member role changed")
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"message": "Role updated successfully",
		"role":    next,
	})
}
