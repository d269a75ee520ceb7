package circulation

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ItemStore persists Item records. Get fails with a *NotFoundError if the item is absent.
type ItemStore interface {
	Get(ctx context.Context, itemID uuid.UUID) (Item, error)
	Save(ctx context.Context, item Item) error
	Exists(ctx context.Context, itemID uuid.UUID) (bool, error)
}

// LoanStore persists Loan records. Get and Delete fail with a *NotFoundError if the loan is absent.
//
// FindActiveByBorrower returns the borrower's outstanding loans (ACTIVE and OVERDUE).
// FindOverdueAsOf returns ACTIVE loans whose due date is strictly before date.
type LoanStore interface {
	Get(ctx context.Context, loanID uuid.UUID) (Loan, error)
	Save(ctx context.Context, loan Loan) error
	Delete(ctx context.Context, loanID uuid.UUID) error
	FindActiveByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]Loan, error)
	FindOverdueAsOf(ctx context.Context, date time.Time) ([]Loan, error)
	Find(ctx context.Context, filter LoanFilter) ([]Loan, error)
	CountByState(ctx context.Context) (map[LoanState]int, error)
}

// Tx is one all-or-nothing unit of work. Writes become visible to others only on Commit.
// Rollback after Commit is a no-op, so it can always be deferred.
type Tx interface {
	Items() ItemStore
	Loans() LoanStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens transactions and serves non-transactional reads.
//
// Begin blocks until every lock key is held or ctx is done. Keys are acquired in sorted order,
// so two transactions locking overlapping keys never deadlock. Transactions holding disjoint keys
// never wait for each other.
type Store interface {
	Begin(ctx context.Context, locks ...LockKey) (Tx, error)
	Items() ItemStore
	Loans() LoanStore
}

// LockKey names a unit of mutual exclusion.
type LockKey string

const (
	lockPrefixItem     = "item:"
	lockPrefixBorrower = "borrower:"
)

// ItemLock covers an item's counter and the loan rows referencing it.
func ItemLock(itemID uuid.UUID) LockKey {
	return LockKey(lockPrefixItem + itemID.String())
}

// BorrowerLock covers the per-borrower loan rules (duplicate holding, loan cap, overdue block).
func BorrowerLock(borrowerID uuid.UUID) LockKey {
	return LockKey(lockPrefixBorrower + borrowerID.String())
}

// SortedLockKeys returns the keys deduplicated and in acquisition order.
func SortedLockKeys(keys []LockKey) []LockKey {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	return slices.Compact(sorted)
}

func (k LockKey) String() string {
	return string(k)
}
