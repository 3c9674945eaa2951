package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         []string
}

// Migrations returns the schema migrations in order. The DDL is portable
// between PostgreSQL and SQLite.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create family_spaces table",
			SQL: []string{`
				CREATE TABLE IF NOT EXISTS family_spaces (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					master_key_hash TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
			},
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: []string{`
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email_or_username TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					avatar_key TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
			},
		},
		{
			Version:     3,
			Description: "Create family_memberships table",
			SQL: []string{`
				CREATE TABLE IF NOT EXISTS family_memberships (
					id TEXT PRIMARY KEY,
					family_space_id TEXT NOT NULL REFERENCES family_spaces(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
					created_at TIMESTAMP NOT NULL,
					UNIQUE (family_space_id, user_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_family_memberships_user_id ON family_memberships(user_id)`,
			},
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range Migrations() {
		if err := applyMigration(ctx, db, dialect, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, dialect Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	var applied int
	err = tx.QueryRowContext(ctx,
		dialect.rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`), m.Version,
	).Scan(&applied)
	if err != nil {
		return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
	}
	if applied > 0 {
		return nil
	}

	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		dialect.rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`),
		m.Version, m.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
