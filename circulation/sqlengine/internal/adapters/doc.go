// Package adapters provide database adapter implementations for the SQL circulation store.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgx.Pool, sql.DB (lib/pq or modernc sqlite), and sqlx.DB. All adapters provide equivalent
// functionality through a common DBAdapter interface, so the store works with any supported
// connection type.
//
// Non-transactional reads go to the replica when one is configured and the context asks for
// eventual consistency. Transactions always run on the primary.
package adapters
