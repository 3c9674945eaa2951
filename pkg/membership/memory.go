package membership

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/larder/pkg/auth"
)

// MemoryStore implements Store in process. A single mutex serializes every
// operation, which gives the same guarantees as the SQL tenant lock.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	users       map[string]auth.User
	logins      map[string]string
	tenants     map[string]auth.Tenant
	memberships map[string]auth.Membership // keyed by tenantID + "/" + userID
	seq         int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[string]auth.User),
		logins:      make(map[string]string),
		tenants:     make(map[string]auth.Tenant),
		memberships: make(map[string]auth.Membership),
	}
}

func membershipKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// stamp returns a strictly increasing timestamp so join order is stable
func (s *MemoryStore) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Nanosecond)
}

// UserByID looks up a user by ID
func (s *MemoryStore) UserByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// UserByLogin looks up a user by email or username
func (s *MemoryStore) UserByLogin(ctx context.Context, login string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.logins[login]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// UpdatePassword replaces a user's password hash
func (s *MemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

// Tenant looks up a family space by ID
func (s *MemoryStore) Tenant(ctx context.Context, id string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// DefaultTenant returns the oldest family space
func (s *MemoryStore) DefaultTenant(ctx context.Context) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *auth.Tenant
	for _, t := range s.tenants {
		t := t
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &t
		}
	}
	if oldest == nil {
		return nil, ErrNotFound
	}
	return oldest, nil
}

// CreateTenant inserts a new family space
func (s *MemoryStore) CreateTenant(ctx context.Context, name, secretHash string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	t := auth.Tenant{ID: uuid.NewString(), Name: name, SecretHash: secretHash, CreatedAt: now, UpdatedAt: now}
	s.tenants[t.ID] = t
	return &t, nil
}

// UpdateTenant changes a family space's name and master key hash
func (s *MemoryStore) UpdateTenant(ctx context.Context, id, name, secretHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Name = name
	t.SecretHash = secretHash
	t.UpdatedAt = s.now()
	s.tenants[id] = t
	return nil
}

// Membership looks up the membership of a user in a family space
func (s *MemoryStore) Membership(ctx context.Context, userID, tenantID string) (*auth.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// MembershipsForUser lists a user's memberships, oldest first
func (s *MemoryStore) MembershipsForUser(ctx context.Context, userID string) ([]auth.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Membership
	for _, m := range s.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListMembers lists the members of a family space by join time
func (s *MemoryStore) ListMembers(ctx context.Context, tenantID string) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Member
	for _, m := range s.memberships {
		if m.TenantID != tenantID {
			continue
		}
		u := s.users[m.UserID]
		out = append(out, Member{Membership: m, Name: u.Name, Login: u.Login, AvatarKey: u.AvatarKey})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) countLocked(tenantID string, role auth.Role) int {
	n := 0
	for _, m := range s.memberships {
		if m.TenantID == tenantID && (role == "" || m.Role == role) {
			n++
		}
	}
	return n
}

// CreateMember creates a user and its membership atomically
func (s *MemoryStore) CreateMember(ctx context.Context, tenantID string, nu NewUser, assign RoleAssigner) (*auth.User, *auth.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return nil, nil, ErrNotFound
	}
	if _, taken := s.logins[nu.Login]; taken {
		return nil, nil, ErrLoginTaken
	}

	role := assign(s.countLocked(tenantID, ""))
	if !role.Valid() {
		return nil, nil, auth.ErrInvalidRole
	}

	now := s.stamp()
	u := auth.User{
		ID: uuid.NewString(), Name: nu.Name, Login: nu.Login, PasswordHash: nu.PasswordHash,
		AvatarKey: nu.AvatarKey, CreatedAt: now, UpdatedAt: now,
	}
	m := auth.Membership{ID: uuid.NewString(), UserID: u.ID, TenantID: tenantID, Role: role, CreatedAt: now}

	s.users[u.ID] = u
	s.logins[u.Login] = u.ID
	s.memberships[membershipKey(tenantID, u.ID)] = m
	return &u, &m, nil
}

// UpdateRole changes a member's role. Demoting the last owner fails with ErrSoleOwner.
func (s *MemoryStore) UpdateRole(ctx context.Context, tenantID, userID string, role auth.Role) error {
	if !role.Valid() {
		return auth.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey(tenantID, userID)
	m, ok := s.memberships[key]
	if !ok {
		return ErrNotFound
	}
	if m.Role == role {
		return nil
	}
	if m.Role == auth.RoleOwner && s.countLocked(tenantID, auth.RoleOwner) <= 1 {
		return ErrSoleOwner
	}
	m.Role = role
	s.memberships[key] = m
	return nil
}

// RemoveMember deletes a membership. Removing the last owner fails with ErrSoleOwner.
func (s *MemoryStore) RemoveMember(ctx context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey(tenantID, userID)
	m, ok := s.memberships[key]
	if !ok {
		return ErrNotFound
	}
	if m.Role == auth.RoleOwner && s.countLocked(tenantID, auth.RoleOwner) <= 1 {
		return ErrSoleOwner
	}
	delete(s.memberships, key)
	return nil
}

// DeleteUser removes a user and all their memberships. Used to revoke an
// account outright.
func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	delete(s.users, userID)
	delete(s.logins, u.Login)
	for key, m := range s.memberships {
		if m.UserID == userID {
			delete(s.memberships, key)
		}
	}
	return nil
}
