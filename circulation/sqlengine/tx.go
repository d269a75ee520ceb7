package sqlengine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/sqlengine/internal/adapters"
)

// tx wraps one database transaction. It is not safe for concurrent use.
type tx struct {
	store *Store
	dbTx  adapters.DBTx
	held  map[circulation.LockKey]struct{}
	done  bool
}

func (t *tx) Items() circulation.ItemStore {
	return txItems{tx: t}
}

func (t *tx) Loans() circulation.LoanStore {
	return txLoans{loanQueries: loanQueries{store: t.store, ex: t.dbTx}, tx: t}
}

// Commit commits the database transaction. PostgreSQL releases the advisory locks with it.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return circulation.ErrTxDone
	}

	t.done = true

	if err := t.dbTx.Commit(ctx); err != nil {
		return errors.Join(circulation.ErrCommitFailed, err)
	}

	return nil
}

// Rollback aborts the database transaction. It is a no-op after Commit.
func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.dbTx.Rollback(ctx); err != nil {
		return errors.Join(circulation.ErrRollbackFailed, err)
	}

	return nil
}

func (t *tx) requireLock(key circulation.LockKey) error {
	if t.done {
		return circulation.ErrTxDone
	}

	if _, ok := t.held[key]; !ok {
		return circulation.ErrLockNotHeld
	}

	return nil
}

func (t *tx) requireOpen() error {
	if t.done {
		return circulation.ErrTxDone
	}

	return nil
}

/***** transactional stores *****/

type txItems struct {
	tx *tx
}

// Get reads the item and, on PostgreSQL, row-locks it for the rest of the transaction.
func (v txItems) Get(ctx context.Context, itemID uuid.UUID) (circulation.Item, error) {
	if err := v.tx.requireOpen(); err != nil {
		return circulation.Item{}, err
	}

	return v.tx.store.getItem(ctx, v.tx.dbTx, itemID, true)
}

func (v txItems) Exists(ctx context.Context, itemID uuid.UUID) (bool, error) {
	if err := v.tx.requireOpen(); err != nil {
		return false, err
	}

	return v.tx.store.itemExists(ctx, v.tx.dbTx, itemID)
}

func (v txItems) Save(ctx context.Context, item circulation.Item) error {
	if err := v.tx.requireLock(circulation.ItemLock(item.ID)); err != nil {
		return err
	}

	if err := item.Validate(); err != nil {
		return err
	}

	return v.tx.store.saveItem(ctx, v.tx.dbTx, item)
}

type txLoans struct {
	loanQueries
	tx *tx
}

func (v txLoans) Get(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	if err := v.tx.requireOpen(); err != nil {
		return circulation.Loan{}, err
	}

	return v.loanQueries.Get(ctx, loanID)
}

func (v txLoans) Save(ctx context.Context, loan circulation.Loan) error {
	if err := v.tx.requireLock(circulation.ItemLock(loan.ItemID)); err != nil {
		return err
	}

	return v.tx.store.saveLoan(ctx, v.tx.dbTx, loan)
}

func (v txLoans) Delete(ctx context.Context, loanID uuid.UUID) error {
	loan, err := v.Get(ctx, loanID)
	if err != nil {
		return err
	}

	if err = v.tx.requireLock(circulation.ItemLock(loan.ItemID)); err != nil {
		return err
	}

	return v.tx.store.deleteLoan(ctx, v.tx.dbTx, loanID)
}

/***** non-transactional stores *****/

type storeItems struct {
	store *Store
}

func (v storeItems) Get(ctx context.Context, itemID uuid.UUID) (circulation.Item, error) {
	return v.store.getItem(ctx, v.store.db, itemID, false)
}

func (v storeItems) Exists(ctx context.Context, itemID uuid.UUID) (bool, error) {
	return v.store.itemExists(ctx, v.store.db, itemID)
}

func (v storeItems) Save(ctx context.Context, item circulation.Item) error {
	return v.store.inOwnTx(ctx, []circulation.LockKey{circulation.ItemLock(item.ID)}, func(t circulation.Tx) error {
		return t.Items().Save(ctx, item)
	})
}

type storeLoans struct {
	loanQueries
}

func (v storeLoans) Save(ctx context.Context, loan circulation.Loan) error {
	return v.store.inOwnTx(ctx, ownLoanLocks(loan), func(t circulation.Tx) error {
		return t.Loans().Save(ctx, loan)
	})
}

func (v storeLoans) Delete(ctx context.Context, loanID uuid.UUID) error {
	loan, err := v.Get(circulation.WithStrongConsistency(ctx), loanID)
	if err != nil {
		return err
	}

	return v.store.inOwnTx(ctx, ownLoanLocks(loan), func(t circulation.Tx) error {
		return t.Loans().Delete(ctx, loanID)
	})
}

// ownLoanLocks matches the lock scope the lifecycle takes for a loan.
func ownLoanLocks(loan circulation.Loan) []circulation.LockKey {
	return []circulation.LockKey{circulation.ItemLock(loan.ItemID), circulation.BorrowerLock(loan.BorrowerID)}
}

func (s *Store) inOwnTx(ctx context.Context, keys []circulation.LockKey, fn func(t circulation.Tx) error) error {
	t, err := s.Begin(ctx, keys...)
	if err != nil {
		return err
	}

	if err = fn(t); err != nil {
		if rollbackErr := t.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}

		return err
	}

	return t.Commit(ctx)
}
