package membership

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestParseDialect(t *testing.T) {
	for _, in := range []string{"postgres", "PostgreSQL", "pq"} {
		d, err := ParseDialect(in)
		assert.NoError(t, err)
		assert.Equal(t, DialectPostgres, d)
	}
	for _, in := range []string{"sqlite", "sqlite3"} {
		d, err := ParseDialect(in)
		assert.NoError(t, err)
		assert.Equal(t, DialectSQLite, d)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = $1 AND y = $2 AND z = $10`
	assert.Equal(t, q, DialectPostgres.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = ?1 AND y = ?2 AND z = ?10`, DialectSQLite.rebind(q))
}

func TestLockSuffix(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", DialectPostgres.lockSuffix())
	assert.Empty(t, DialectSQLite.lockSuffix())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:a.db?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("file:a.db"))
	assert.Equal(t, "file:a.db?_txlock=deferred&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("file:a.db?_txlock=deferred"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, isUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
