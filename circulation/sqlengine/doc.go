// Package sqlengine provides a SQL implementation of circulation.Store.
//
// It supports PostgreSQL through pgx.Pool, sql.DB (lib/pq) and sqlx.DB, and SQLite through
// sql.DB with the pure Go modernc driver. Queries are built with goqu in the matching dialect.
//
// Mutual exclusion on PostgreSQL uses transaction-scoped advisory locks, one per lock key,
// taken in sorted order right after BEGIN, plus row locks (SELECT ... FOR UPDATE) on item reads.
// A SQLite store runs on a single connection, so transactions are serialized as a whole.
//
// Basic usage:
//
//	store, err := sqlengine.NewStoreFromPGXPool(pool)
//	if err != nil { ... }
//	if err = store.Migrate(ctx); err != nil { ... }
//
//	tx, err := store.Begin(ctx, circulation.ItemLock(itemID))
//
// Timestamps are stored as Unix microseconds in BIGINT columns, so both dialects share one schema
// and compare dates the same way.
package sqlengine
