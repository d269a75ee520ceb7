package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/sqlengine/internal/adapters"
)

const (
	defaultItemsTableName = "items"
	defaultLoansTableName = "loans"
	defaultLockTimeout    = 5 * time.Second
	dialectPostgres       = "postgres"
	dialectSQLite         = "sqlite3"
	driverSQLite          = "sqlite"

	sqlAdvisoryXactLock = "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))"

	logMsgSQLExecuted      = "sqlengine: executed sql for "
	logMsgDBQueryFailed    = "sqlengine: database query failed"
	logMsgDBExecFailed     = "sqlengine: database execution failed"
	logMsgBuildQueryFailed = "sqlengine: failed to build query"
	logMsgScanRowFailed    = "sqlengine: failed to scan database row"
	logMsgCloseRowsFailed  = "sqlengine: failed to close database rows"
	logMsgLockFailed       = "sqlengine: acquiring advisory locks failed"
	logMsgRollbackFailed   = "sqlengine: rollback failed"
	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrDurationMS      = "duration_ms"
	logAttrLocks           = "locks"
	logActionMigrate       = "migrate"
	logActionLock          = "lock"
	logActionSelectItem    = "select item"
	logActionSaveItem      = "save item"
	logActionSelectLoans   = "select loans"
	logActionSaveLoan      = "save loan"
	logActionDeleteLoan    = "delete loan"
	logActionCountLoans    = "count loans"
)

var _ circulation.Store = (*Store)(nil)

// executor is what a query needs: either the pooled adapter or an open transaction.
type executor interface {
	Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (adapters.DBResult, error)
}

// Store is a circulation.Store on top of a SQL database.
type Store struct {
	db          adapters.DBAdapter
	dialect     goqu.DialectWrapper
	advisory    bool
	itemsTable  string
	loansTable  string
	lockTimeout time.Duration
	logger      circulation.Logger
}

// NewStoreFromPGXPool creates a PostgreSQL Store using a pgx Pool.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromPGXPoolAndReplica creates a PostgreSQL Store using a primary and a replica pgx Pool.
// Reads in a context marked with circulation.WithEventualConsistency go to the replica.
func NewStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLDB creates a PostgreSQL Store using a sql.DB opened with the lib/pq driver.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLDBAndReplica creates a PostgreSQL Store using a primary and a replica sql.DB.
func NewStoreFromSQLDBAndReplica(db *sql.DB, replica *sql.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewSQLAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLX creates a PostgreSQL Store using a sqlx.DB.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewSQLXAdapter(db), options)
}

// NewStoreFromSQLXAndReplica creates a PostgreSQL Store using a primary and a replica sqlx.DB.
func NewStoreFromSQLXAndReplica(db *sqlx.DB, replica *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newPostgresStore(adapters.NewSQLXAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLite creates a SQLite Store. The pool is limited to one connection,
// which serializes transactions.
func NewStoreFromSQLite(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	db.SetMaxOpenConns(1)

	return newStore(adapters.NewSQLAdapter(db), dialectSQLite, false, options)
}

// OpenSQLite opens a SQLite database with the modernc driver. Use ":memory:" for a throwaway database.
// Every connection waits up to lockTimeout for a lock held by another process and begins its
// transactions IMMEDIATE, so concurrent writers queue instead of failing with SQLITE_BUSY.
// A zero lockTimeout selects the default.
func OpenSQLite(path string, lockTimeout time.Duration) (*sql.DB, error) {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	db, err := sql.Open(driverSQLite, sqliteDSN(path, lockTimeout))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(path string, lockTimeout time.Duration) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", lockTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}

	return path + separator + params.Encode()
}

func newPostgresStore(db adapters.DBAdapter, options []Option) (*Store, error) {
	return newStore(db, dialectPostgres, true, options)
}

func newStore(db adapters.DBAdapter, dialect string, advisory bool, options []Option) (*Store, error) {
	s := &Store{
		db:          db,
		dialect:     goqu.Dialect(dialect),
		advisory:    advisory,
		itemsTable:  defaultItemsTableName,
		loansTable:  defaultLoansTableName,
		lockTimeout: defaultLockTimeout,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Begin starts a database transaction and, on PostgreSQL, takes one advisory lock per key in sorted order.
func (s *Store) Begin(ctx context.Context, locks ...circulation.LockKey) (circulation.Tx, error) {
	keys := circulation.SortedLockKeys(locks)

	dbTx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, errors.Join(circulation.ErrBeginTxFailed, err)
	}

	if err = s.acquireAdvisoryLocks(ctx, dbTx, keys); err != nil {
		if rollbackErr := dbTx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			s.logWarn(logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}

		return nil, errors.Join(circulation.ErrAcquiringLockFailed, err)
	}

	held := make(map[circulation.LockKey]struct{}, len(keys))
	for _, key := range keys {
		held[key] = struct{}{}
	}

	return &tx{store: s, dbTx: dbTx, held: held}, nil
}

func (s *Store) acquireAdvisoryLocks(ctx context.Context, dbTx adapters.DBTx, keys []circulation.LockKey) error {
	if !s.advisory || len(keys) == 0 {
		return nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	for _, key := range keys {
		if _, err := s.exec(lockCtx, dbTx, logActionLock, sqlAdvisoryXactLock, []any{key.String()}); err != nil {
			s.logWarn(logMsgLockFailed, logAttrLocks, len(keys), logAttrError, err.Error())
			return err
		}
	}

	return nil
}

// Items returns a non-transactional view. Reads may be served by a replica, saves run in their own transaction.
func (s *Store) Items() circulation.ItemStore {
	return storeItems{store: s}
}

// Loans returns a non-transactional view. Reads may be served by a replica, writes run in their own transaction.
func (s *Store) Loans() circulation.LoanStore {
	return storeLoans{loanQueries: loanQueries{store: s, ex: s.db}}
}

func (s *Store) query(ctx context.Context, ex executor, action string, sqlQuery string, args []any) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := ex.Query(ctx, sqlQuery, args...)
	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if err != nil {
		s.logError(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, sqlQuery)
		return nil, errors.Join(circulation.ErrQueryingFailed, err)
	}

	return rows, nil
}

func (s *Store) exec(ctx context.Context, ex executor, action string, sqlQuery string, args []any) (int64, error) {
	start := time.Now()
	result, err := ex.Exec(ctx, sqlQuery, args...)
	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	failed := circulation.ErrSavingFailed
	if action == logActionDeleteLoan {
		failed = circulation.ErrDeletingFailed
	}

	if err != nil {
		s.logError(logMsgDBExecFailed, logAttrError, err.Error(), logAttrQuery, sqlQuery)
		return 0, errors.Join(failed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(failed, err)
	}

	return affected, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s *Store) buildFailed(err error) error {
	s.logError(logMsgBuildQueryFailed, logAttrError, err.Error())
	return errors.Join(circulation.ErrBuildingQueryFailed, err)
}

func (s *Store) scanFailed(err error) error {
	s.logError(logMsgScanRowFailed, logAttrError, err.Error())
	return errors.Join(circulation.ErrScanningDBRowFailed, err)
}

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (s *Store) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// ceilMicros rounds up, so a strict "before t" bound keeps rows less than a microsecond before t.
func ceilMicros(t time.Time) int64 {
	micros := toMicros(t)
	if t.Nanosecond()%int(time.Microsecond) != 0 {
		micros++
	}

	return micros
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
