package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/accounts"
	"github.com/platinummonkey/larder/pkg/audit"
	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/ratelimit"
	"github.com/platinummonkey/larder/pkg/session"
)

// AuthHandlers serves signup, login, logout, me and password changes
type AuthHandlers struct {
	accounts *accounts.Service
	sessions *session.CookieStore
	throttle *middleware.Throttle
	limiters *ratelimit.Registry
	audit    audit.Logger
	logger   *observability.Logger
}

// NewAuthHandlers creates the authentication handlers
func NewAuthHandlers(svc *accounts.Service, sessions *session.CookieStore, throttle *middleware.Throttle, limiters *ratelimit.Registry, trail audit.Logger, logger *observability.Logger) *AuthHandlers {
	if trail == nil {
		trail = audit.Nop()
	}
	return &AuthHandlers{
		accounts: svc,
		sessions: sessions,
		throttle: throttle,
		limiters: limiters,
		audit:    trail,
		logger:   logger,
	}
}

func (h *AuthHandlers) record(r *http.Request, event *audit.Event) {
	audit.Record(r.Context(), h.audit, h.logger, event)
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, gate *middleware.Gate) {
	router.HandleFunc("/auth/signup", h.signup).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.Handle("/auth/me", gate.RequireAuth(middleware.HandlerFunc(h.me))).Methods("GET")
	router.Handle("/me/password", gate.RequireAuth(
		h.throttle.ByUser(h.limiters.MustGet(ratelimit.PasswordReset), middleware.HandlerFunc(h.changePassword)),
	)).Methods("PUT")
}

// signup handles POST /auth/signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	if !h.throttle.Apply(w, r, h.limiters.MustGet(ratelimit.Signup), ratelimit.IPKey(r)) {
		return
	}

	var req accounts.SignupInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sess, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event := audit.FromRequest(r, audit.EventTypeAuthSignup, audit.EventStatusSuccess).WithActor(sess.Identity)
	event.Metadata = map[string]interface{}{"role": sess.Identity.Role.String()}
	h.record(r, event)

	h.sessions.SetSession(w, sess.Token, sess.Extended)
	_ = httputil.WriteCreated(w, UserResponse{User: sess.Identity})
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	if !h.throttle.Apply(w, r, h.limiters.MustGet(ratelimit.Login), ratelimit.IPKey(r)) {
		return
	}

	var req accounts.LoginInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sess, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) || errors.Is(err, accounts.ErrNoMembership) {
			event := audit.FromRequest(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
			event.Login = req.Login
			event.Message = err.Error()
			h.record(r, event)
		}
		writeError(w, r, h.logger, err)
		return
	}

	h.record(r, audit.FromRequest(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess).WithActor(sess.Identity))
	h.sessions.SetSession(w, sess.Token, sess.Extended)
	_ = httputil.WriteSuccess(w, UserResponse{User: sess.Identity})
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	h.record(r, audit.FromRequest(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess))
	h.sessions.ClearSession(w)
	_ = httputil.WriteMessage(w, "Logged out successfully")
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	_ = httputil.WriteSuccess(w, UserResponse{User: id})
}

// changePassword handles PUT /me/password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req ChangePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, accounts.ErrWrongPassword) {
			h.record(r, audit.FromRequest(r, audit.EventTypeAuthPasswordChange, audit.EventStatusFailure).WithActor(id))
		}
		writeError(w, r, h.logger, err)
		return
	}
	h.record(r, audit.FromRequest(r, audit.EventTypeAuthPasswordChange, audit.EventStatusSuccess).WithActor(id))
	_ = httputil.WriteMessage(w, "Password updated successfully")
}
