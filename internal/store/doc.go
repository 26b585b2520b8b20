// Package store provides persistence for conversation metadata.
//
// # Overview
//
// The store keeps one row per conversation: owner, title, selected
// repository, and the last known working branch. The branch field is updated
// by the branch reconciler when the agent switches branches inside its
// workspace, and is nullable because a conversation may have no known branch.
//
// # Interface
//
// The Store interface is implemented by:
//
//   - SQLiteStore: production implementation using modernc.org/sqlite
//   - MockStore: in-memory implementation for tests
//
// # SQLite Implementation
//
// The SQLite store:
//
//   - Creates the schema automatically on first open
//   - Uses WAL mode for concurrent read performance
//   - Creates parent directories for the database path as needed
//   - Supports ":memory:" for ephemeral databases in tests
//
// # Thread Safety
//
// SQLiteStore relies on database/sql connection pooling and is safe for
// concurrent use. MockStore guards its maps with a mutex.
package store
