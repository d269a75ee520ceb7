package sqlengine

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithItemsTableName sets the table name for items.
func WithItemsTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return circulation.ErrEmptyTableNameSupplied
		}

		s.itemsTable = tableName

		return nil
	}
}

// WithLoansTableName sets the table name for loans.
func WithLoansTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return circulation.ErrEmptyTableNameSupplied
		}

		s.loansTable = tableName

		return nil
	}
}

// WithLockTimeout bounds how long Begin waits for advisory locks on PostgreSQL.
// On SQLite the same bound is the busy timeout passed to OpenSQLite.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout <= 0 {
			return errors.New("lock timeout must be positive")
		}

		s.lockTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Warn level: Non-critical issues like failed rollbacks and row close errors
// Error level: Failures that cause the operation to fail.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}
