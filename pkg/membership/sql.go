package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/observability"
)

const tracerName = "github.com/platinummonkey/larder/pkg/membership"

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// SQLOption configures a SQLStore
type SQLOption func(*SQLStore)

// WithMetrics records operation latency and errors
func WithMetrics(m *observability.Metrics) SQLOption {
	return func(s *SQLStore) {
		s.metrics = m
	}
}

// WithSQLClock overrides the time source for created/updated timestamps
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// WithIDGenerator overrides UUID generation
func WithIDGenerator(newID func() string) SQLOption {
	return func(s *SQLStore) {
		s.newID = newID
	}
}

// NewSQLStore creates a store over an open database
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// observe starts a span and returns a finisher that records the outcome.
// ErrNotFound is an expected result and not counted as an error.
func (s *SQLStore) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "membership."+op,
		trace.WithAttributes(attribute.String("db.system", string(s.dialect))))
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
			s.metrics.ObserveStore(op, start, err)
		} else {
			s.metrics.ObserveStore(op, start, nil)
		}
		span.End()
	}
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, name, email_or_username, password_hash, avatar_key, created_at, updated_at`

func scanUser(row rowScanner) (*auth.User, error) {
	u := &auth.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Login, &u.PasswordHash, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// UserByID looks up a user by ID
func (s *SQLStore) UserByID(ctx context.Context, id string) (u *auth.User, err error) {
	ctx, done := s.observe(ctx, "user_by_id")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	return scanUser(row)
}

// UserByLogin looks up a user by email or username
func (s *SQLStore) UserByLogin(ctx context.Context, login string) (u *auth.User, err error) {
	ctx, done := s.observe(ctx, "user_by_login")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email_or_username = $1`), login)
	return scanUser(row)
}

// UpdatePassword replaces a user's password hash
func (s *SQLStore) UpdatePassword(ctx context.Context, userID, passwordHash string) (err error) {
	ctx, done := s.observe(ctx, "update_password")
	defer func() { done(err) }()

	result, err := s.db.ExecContext(ctx,
		s.q(`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`),
		passwordHash, s.now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOneRow(result)
}

const tenantColumns = `id, name, master_key_hash, created_at, updated_at`

func scanTenant(row rowScanner) (*auth.Tenant, error) {
	t := &auth.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.SecretHash, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan family space: %w", err)
	}
	return t, nil
}

// Tenant looks up a family space by ID
func (s *SQLStore) Tenant(ctx context.Context, id string) (t *auth.Tenant, err error) {
	ctx, done := s.observe(ctx, "tenant")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+tenantColumns+` FROM family_spaces WHERE id = $1`), id)
	return scanTenant(row)
}

// DefaultTenant returns the oldest family space
func (s *SQLStore) DefaultTenant(ctx context.Context) (t *auth.Tenant, err error) {
	ctx, done := s.observe(ctx, "default_tenant")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM family_spaces ORDER BY created_at ASC, id ASC LIMIT 1`)
	return scanTenant(row)
}

// CreateTenant inserts a new family space
func (s *SQLStore) CreateTenant(ctx context.Context, name, secretHash string) (t *auth.Tenant, err error) {
	ctx, done := s.observe(ctx, "create_tenant")
	defer func() { done(err) }()

	now := s.now()
	t = &auth.Tenant{ID: s.newID(), Name: name, SecretHash: secretHash, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO family_spaces (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5)`),
		t.ID, t.Name, t.SecretHash, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create family space: %w", err)
	}
	return t, nil
}

// UpdateTenant changes a family space's name and master key hash
func (s *SQLStore) UpdateTenant(ctx context.Context, id, name, secretHash string) (err error) {
	ctx, done := s.observe(ctx, "update_tenant")
	defer func() { done(err) }()

	result, err := s.db.ExecContext(ctx,
		s.q(`UPDATE family_spaces SET name = $1, master_key_hash = $2, updated_at = $3 WHERE id = $4`),
		name, secretHash, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update family space: %w", err)
	}
	return expectOneRow(result)
}

const membershipColumns = `id, user_id, family_space_id, role, created_at`

func scanMembership(row rowScanner) (*auth.Membership, error) {
	m := &auth.Membership{}
	var role string
	err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	if m.Role, err = auth.ParseRole(role); err != nil {
		return nil, fmt.Errorf("membership %s: %w", m.ID, err)
	}
	return m, nil
}

// Membership looks up the membership of a user in a family space
func (s *SQLStore) Membership(ctx context.Context, userID, tenantID string) (m *auth.Membership, err error) {
	ctx, done := s.observe(ctx, "membership")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+membershipColumns+` FROM family_memberships WHERE user_id = $1 AND family_space_id = $2`),
		userID, tenantID)
	return scanMembership(row)
}

// MembershipsForUser lists a user's memberships, oldest first
func (s *SQLStore) MembershipsForUser(ctx context.Context, userID string) (out []auth.Membership, err error) {
	ctx, done := s.observe(ctx, "memberships_for_user")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+membershipColumns+` FROM family_memberships WHERE user_id = $1 ORDER BY created_at ASC, id ASC`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return out, nil
}

// ListMembers lists the members of a family space by join time
func (s *SQLStore) ListMembers(ctx context.Context, tenantID string) (out []Member, err error) {
	ctx, done := s.observe(ctx, "list_members")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT m.id, m.user_id, m.family_space_id, m.role, m.created_at,
		       u.name, u.email_or_username, u.avatar_key
		FROM family_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.family_space_id = $1
		ORDER BY m.created_at ASC, m.id ASC`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mem Member
		var role string
		if err := rows.Scan(&mem.ID, &mem.UserID, &mem.TenantID, &role, &mem.CreatedAt,
			&mem.Name, &mem.Login, &mem.AvatarKey); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if mem.Role, err = auth.ParseRole(role); err != nil {
			return nil, fmt.Errorf("membership %s: %w", mem.ID, err)
		}
		out = append(out, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return out, nil
}

// inTenantTx runs fn in a transaction holding the tenant lock
func (s *SQLStore) inTenantTx(ctx context.Context, tenantID string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx,
		s.q(`SELECT id FROM family_spaces WHERE id = $1`+s.dialect.lockSuffix()), tenantID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock family space: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateMember creates a user and its membership in one transaction
func (s *SQLStore) CreateMember(ctx context.Context, tenantID string, nu NewUser, assign RoleAssigner) (u *auth.User, m *auth.Membership, err error) {
	ctx, done := s.observe(ctx, "create_member")
	defer func() { done(err) }()

	err = s.inTenantTx(ctx, tenantID, func(tx *sql.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM users WHERE email_or_username = $1`), nu.Login,
		).Scan(&taken); err != nil {
			return fmt.Errorf("failed to check login: %w", err)
		}
		if taken > 0 {
			return ErrLoginTaken
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM family_memberships WHERE family_space_id = $1`), tenantID,
		).Scan(&existing); err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}

		role := assign(existing)
		if !role.Valid() {
			return fmt.Errorf("assigned %w", auth.ErrInvalidRole)
		}

		now := s.now()
		u = &auth.User{
			ID: s.newID(), Name: nu.Name, Login: nu.Login, PasswordHash: nu.PasswordHash,
			AvatarKey: nu.AvatarKey, CreatedAt: now, UpdatedAt: now,
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`),
			u.ID, u.Name, u.Login, u.PasswordHash, u.AvatarKey, u.CreatedAt, u.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrLoginTaken
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		m = &auth.Membership{ID: s.newID(), UserID: u.ID, TenantID: tenantID, Role: role, CreatedAt: now}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO family_memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4, $5)`),
			m.ID, m.UserID, m.TenantID, string(m.Role), m.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("failed to create membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return u, m, nil
}

// currentRole reads a member's role inside tx
func (s *SQLStore) currentRole(ctx context.Context, tx *sql.Tx, tenantID, userID string) (auth.Role, error) {
	var role string
	err := tx.QueryRowContext(ctx,
		s.q(`SELECT role FROM family_memberships WHERE family_space_id = $1 AND user_id = $2`),
		tenantID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read role: %w", err)
	}
	return auth.ParseRole(role)
}

// ownerCount counts owners inside tx
func (s *SQLStore) ownerCount(ctx context.Context, tx *sql.Tx, tenantID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM family_memberships WHERE family_space_id = $1 AND role = $2`),
		tenantID, string(auth.RoleOwner),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

// UpdateRole changes a member's role. Demoting the last owner fails with ErrSoleOwner.
func (s *SQLStore) UpdateRole(ctx context.Context, tenantID, userID string, role auth.Role) (err error) {
	ctx, done := s.observe(ctx, "update_role")
	defer func() { done(err) }()

	if !role.Valid() {
		return auth.ErrInvalidRole
	}

	return s.inTenantTx(ctx, tenantID, func(tx *sql.Tx) error {
		current, err := s.currentRole(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		if current == role {
			return nil
		}
		if current == auth.RoleOwner {
			owners, err := s.ownerCount(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrSoleOwner
			}
		}

		if _, err := tx.ExecContext(ctx,
			s.q(`UPDATE family_memberships SET role = $1 WHERE family_space_id = $2 AND user_id = $3`),
			string(role), tenantID, userID,
		); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return nil
	})
}

// RemoveMember deletes a membership. Removing the last owner fails with ErrSoleOwner.
func (s *SQLStore) RemoveMember(ctx context.Context, tenantID, userID string) (err error) {
	ctx, done := s.observe(ctx, "remove_member")
	defer func() { done(err) }()

	return s.inTenantTx(ctx, tenantID, func(tx *sql.Tx) error {
		current, err := s.currentRole(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		if current == auth.RoleOwner {
			owners, err := s.ownerCount(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrSoleOwner
			}
		}

		if _, err := tx.ExecContext(ctx,
			s.q(`DELETE FROM family_memberships WHERE family_space_id = $1 AND user_id = $2`),
			tenantID, userID,
		); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
