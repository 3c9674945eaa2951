// Package accounts implements signup, login and password changes on top of
// the membership store, the master-key gate and the token codec.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/avatar"
	"github.com/platinummonkey/larder/pkg/bootstrap"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/validation"
)

var (
	// ErrInvalidCredentials covers both an unknown login and a wrong password
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")

	// ErrNoMembership is returned at login for a user outside every tenant
	ErrNoMembership = errors.New("accounts: user has no family membership")

	// ErrInvalidMasterKey is returned at signup for a wrong master key
	ErrInvalidMasterKey = errors.New("accounts: invalid family master key")

	// ErrNoTenant is returned when the family space was never bootstrapped
	ErrNoTenant = errors.New("accounts: family space not initialized")

	// ErrWrongPassword is returned when the current password does not match
	ErrWrongPassword = errors.New("accounts: current password is incorrect")
)

// Field limits. MinNewPasswordLength applies to password changes.
const (
	MaxFieldLength       = 200
	MinLoginLength       = 3
	MinPasswordLength    = 6
	MinNewPasswordLength = 8
	MinMasterKeyLength   = 6
)

// Signer issues session tokens
type Signer interface {
	Sign(sub auth.Subject, extended bool) (string, error)
}

// MasterKeyVerifier checks a candidate master key for a tenant
type MasterKeyVerifier interface {
	Verify(tenant *auth.Tenant, candidate string) bool
}

// SignupInput is the data of a signup request
type SignupInput struct {
	Name       string `json:"name"`
	Login      string `json:"emailOrUsername"`
	Password   string `json:"password"`
	MasterKey  string `json:"familyMasterKey"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginInput is the data of a login request
type LoginInput struct {
	Login      string `json:"emailOrUsername"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Session is a signed-in identity with its token
type Session struct {
	Identity *auth.Identity
	Token    string
	Extended bool
}

// Service runs the account flows
type Service struct {
	store        membership.Store
	masterKey    MasterKeyVerifier
	signer       Signer
	avatars      avatar.Resolver
	passwordCost int
	logger       *observability.Logger
	metrics      *observability.Metrics

	timingOnce sync.Once
	timingHash string
}

// Option configures a Service
type Option func(*Service)

// WithPasswordCost sets the bcrypt cost of new password hashes
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// WithAvatars sets the avatar URL resolver
func WithAvatars(a avatar.Resolver) Option {
	return func(s *Service) {
		s.avatars = a
	}
}

// WithLogger sets the fallback logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics records signup and login outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates an account service
func NewService(store membership.Store, masterKey MasterKeyVerifier, signer Signer, opts ...Option) *Service {
	s := &Service{
		store:        store,
		masterKey:    masterKey,
		signer:       signer,
		avatars:      avatar.Passthrough{},
		passwordCost: auth.DefaultPasswordCost,
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates a user and its membership in the tenant. The first member
// becomes owner.
func (s *Service) Signup(ctx context.Context, in SignupInput) (sess *Session, err error) {
	defer func() { s.metrics.RecordSignup(outcome(err)) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Login = strings.TrimSpace(in.Login)

	v := validation.NewValidator()
	v.Length("name", in.Name, 1, MaxFieldLength)
	v.Length("emailOrUsername", in.Login, MinLoginLength, MaxFieldLength)
	v.Length("password", in.Password, MinPasswordLength, MaxFieldLength)
	v.Length("familyMasterKey", in.MasterKey, MinMasterKeyLength, MaxFieldLength)
	if err := v.Err(); err != nil {
		return nil, err
	}

	tenant, err := s.store.DefaultTenant(ctx)
	if errors.Is(err, membership.ErrNotFound) {
		return nil, ErrNoTenant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	if !s.masterKey.Verify(tenant, in.MasterKey) {
		observability.FromContext(ctx, s.logger).
			WithField("event", "auth.signup.invalid_master_key").
			Warn("signup rejected")
		return nil, ErrInvalidMasterKey
	}

	hash, err := auth.HashPassword(in.Password, s.passwordCost)
	if err != nil {
		return nil, err
	}

	user, m, err := s.store.CreateMember(ctx, tenant.ID, membership.NewUser{
		Name:         in.Name,
		Login:        in.Login,
		PasswordHash: hash,
	}, bootstrap.FirstMemberOwns)
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx, s.logger).WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    m.Role.String(),
	}).Info("user signed up")

	return s.session(ctx, user, m, tenant, in.RememberMe)
}

// Login checks credentials and signs a token for the user's membership.
// Unknown logins and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (sess *Session, err error) {
	defer func() { s.metrics.RecordLogin(outcome(err)) }()

	in.Login = strings.TrimSpace(in.Login)

	v := validation.NewValidator()
	v.Length("emailOrUsername", in.Login, 1, MaxFieldLength)
	v.Length("password", in.Password, 1, MaxFieldLength)
	if err := v.Err(); err != nil {
		return nil, err
	}

	user, err := s.store.UserByLogin(ctx, in.Login)
	if errors.Is(err, membership.ErrNotFound) {
		auth.BurnPasswordCheck(s.unknownUserHash(), in.Password)
		s.logInvalidCredentials(ctx, in.Login)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logInvalidCredentials(ctx, in.Login)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	memberships, err := s.store.MembershipsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	if len(memberships) == 0 {
		return nil, ErrNoMembership
	}
	m := memberships[0]

	tenant, err := s.store.Tenant(ctx, m.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	return s.session(ctx, user, &m, tenant, in.RememberMe)
}

// unknownUserHash is built on first use at the service's password cost
func (s *Service) unknownUserHash() string {
	s.timingOnce.Do(func() {
		s.timingHash = auth.TimingHash(s.passwordCost)
	})
	return s.timingHash
}

// ChangePassword replaces the caller's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	v := validation.NewValidator()
	v.Length("currentPassword", current, 1, MaxFieldLength)
	v.Length("newPassword", next, MinNewPasswordLength, MaxFieldLength)
	if err := v.Err(); err != nil {
		return err
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return ErrWrongPassword
		}
		return err
	}

	hash, err := auth.HashPassword(next, s.passwordCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	observability.FromContext(ctx, s.logger).WithField("user_id", userID).Info("password changed")
	return nil
}

func (s *Service) session(ctx context.Context, user *auth.User, m *auth.Membership, tenant *auth.Tenant, extended bool) (*Session, error) {
	token, err := s.signer.Sign(auth.Subject{UserID: user.ID, TenantID: tenant.ID, Role: m.Role}, extended)
	if err != nil {
		return nil, err
	}

	id := &auth.Identity{
		UserID:      user.ID,
		DisplayName: user.Name,
		Login:       user.Login,
		Role:        m.Role,
		TenantID:    tenant.ID,
		TenantName:  tenant.Name,
	}
	if url, err := s.avatars.URL(ctx, user.AvatarKey); err == nil {
		id.AvatarURL = url
	}

	return &Session{Identity: id, Token: token, Extended: extended}, nil
}

func (s *Service) logInvalidCredentials(ctx context.Context, login string) {
	observability.FromContext(ctx, s.logger).
		WithField("event", "auth.login.invalid_credentials").
		WithField("login", login).
		Warn("login rejected")
}

func outcome(err error) string {
	var verr *validation.Error
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidMasterKey):
		return "rejected"
	case errors.Is(err, ErrNoMembership), errors.Is(err, membership.ErrLoginTaken):
		return "conflict"
	}
	return "error"
}
