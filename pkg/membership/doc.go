// Package membership persists users, family spaces (tenants) and the
// memberships that tie them together.
//
// Two adapters implement Store:
//
//   - SQLStore runs on PostgreSQL (lib/pq) or SQLite (mattn/go-sqlite3).
//   - MemoryStore keeps everything in process, for development and tests.
//
// # Serialization
//
// Operations that depend on the current member set run in a transaction that
// first locks the tenant row. On PostgreSQL this is SELECT ... FOR UPDATE; on
// SQLite the connection is opened with _txlock=immediate so every transaction
// takes the database write lock up front. This makes "first member becomes
// owner" and "never remove the last owner" hold under concurrent requests.
//
// # Errors
//
// Lookups return ErrNotFound when a row is absent. Any other error is a
// store failure and must not be treated as "not found" by callers.
package membership
