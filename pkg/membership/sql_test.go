package membership

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/observability"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// Test helper to create a postgres-dialect store over sqlmock
func newMockStore(t *testing.T, opts ...SQLOption) (*SQLStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	ids := []string{"id-1", "id-2", "id-3"}
	next := 0
	opts = append([]SQLOption{
		WithSQLClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { id := ids[next%len(ids)]; next++; return id }),
	}, opts...)
	return NewSQLStore(db, DialectPostgres, opts...), mock, db
}

func TestSQLStore_UserByID(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + userColumns + ` FROM users WHERE id = $1`)).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email_or_username", "password_hash", "avatar_key", "created_at", "updated_at"}).
				AddRow("u1", "Ann", "ann", "hash", "avatars/u1.png", fixedNow, fixedNow))

		u, err := store.UserByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", u.Name)
		assert.Equal(t, "avatars/u1.png", u.AvatarKey)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u2").WillReturnError(sql.ErrNoRows)
		_, err := store.UserByID(context.Background(), "u2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("store failure is not not-found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("u3").WillReturnError(errors.New("connection reset"))
		_, err := store.UserByID(context.Background(), "u3")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Membership_RejectsUnknownRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`FROM family_memberships WHERE user_id = \$1 AND family_space_id = \$2`).
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "family_space_id", "role", "created_at"}).
			AddRow("m1", "u1", "t1", "superuser", fixedNow))

	_, err := store.Membership(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateMember_LocksTenant(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM family_spaces WHERE id = $1 FOR UPDATE`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE email_or_username = $1`)).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM family_memberships WHERE family_space_id = $1`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("id-1", "Ann", "ann", "hash", "", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO family_memberships`).
		WithArgs("id-2", "id-1", "t1", "owner", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	u, m, err := store.CreateMember(context.Background(), "t1",
		NewUser{Name: "Ann", Login: "ann", PasswordHash: "hash"}, firstOwns)
	require.NoError(t, err)
	assert.Equal(t, "id-1", u.ID)
	assert.Equal(t, auth.RoleOwner, m.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateMember_RollsBackOnMembershipFailure(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("t1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(`FROM users WHERE email_or_username`).WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM family_memberships WHERE family_space_id`).WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO family_memberships`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, _, err := store.CreateMember(context.Background(), "t1",
		NewUser{Name: "Bob", Login: "bob", PasswordHash: "hash"}, firstOwns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create membership")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateMember_LoginTaken(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("t1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(`FROM users WHERE email_or_username`).WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, _, err := store.CreateMember(context.Background(), "t1",
		NewUser{Name: "Ann", Login: "ann", PasswordHash: "hash"}, firstOwns)
	assert.ErrorIs(t, err, ErrLoginTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RemoveMember_SoleOwner(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("t1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(`SELECT role FROM family_memberships`).WithArgs("t1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))
	mock.ExpectQuery(`AND role = \$2`).WithArgs("t1", "owner").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := store.RemoveMember(context.Background(), "t1", "u1")
	assert.ErrorIs(t, err, ErrSoleOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("t1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(`SELECT role FROM family_memberships`).WithArgs("t1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("member"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE family_memberships SET role = $1 WHERE family_space_id = $2 AND user_id = $3`)).
		WithArgs("admin", "t1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpdateRole(context.Background(), "t1", "u2", auth.RoleAdmin))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UnknownTenant(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, store.RemoveMember(context.Background(), "nope", "u1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	store, mock, db := newMockStore(t, WithMetrics(metrics))
	defer db.Close()

	mock.ExpectQuery(`FROM users WHERE id`).WithArgs("u1").WillReturnError(errors.New("timeout"))
	mock.ExpectQuery(`FROM users WHERE id`).WithArgs("u2").WillReturnError(sql.ErrNoRows)

	_, _ = store.UserByID(context.Background(), "u1")
	_, _ = store.UserByID(context.Background(), "u2")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("user_by_id")))
}
