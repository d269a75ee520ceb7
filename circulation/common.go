package circulation

import (
	"errors"
)

// Domain sentinels. Typed errors in errors.go unwrap to one of them.
var (
	ErrNotFound              = errors.New("not found")
	ErrBusinessRuleViolation = errors.New("business rule violation")
	ErrInvariantViolation    = errors.New("invariant violation")
)

// Infrastructure sentinels, joined with the underlying driver error via errors.Join.
var (
	ErrNilDatabaseConnection   = errors.New("database connection must not be nil")
	ErrNilStore                = errors.New("store must not be nil")
	ErrNilBorrowerDirectory    = errors.New("borrower directory must not be nil")
	ErrEmptyTableNameSupplied  = errors.New("empty table name supplied")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrQueryingFailed          = errors.New("querying failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrSavingFailed            = errors.New("saving failed")
	ErrDeletingFailed          = errors.New("deleting failed")
	ErrBeginTxFailed           = errors.New("beginning transaction failed")
	ErrCommitFailed            = errors.New("committing transaction failed")
	ErrRollbackFailed          = errors.New("rolling back transaction failed")
	ErrAcquiringLockFailed     = errors.New("acquiring lock failed")
	ErrTxDone                  = errors.New("transaction has already been committed or rolled back")
	ErrLockNotHeld             = errors.New("write outside of the transaction's lock scope")
	ErrDecodingRecordFailed    = errors.New("decoding record failed")
	ErrDirectoryLookupFailed   = errors.New("borrower directory lookup failed")
	ErrInvalidLoanState        = errors.New("invalid loan state")
	ErrInvalidCapacitySupplied = errors.New("total copies must be at least 1")
)
