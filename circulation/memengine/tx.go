package memengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

type stagedLoan struct {
	loan    circulation.Loan
	deleted bool
}

// tx is the write-ahead buffer of one transaction. It is not safe for concurrent use.
type tx struct {
	store       *Store
	keys        []circulation.LockKey
	held        map[circulation.LockKey]struct{}
	stagedItems map[uuid.UUID]circulation.Item
	stagedLoans map[uuid.UUID]stagedLoan
	done        bool
}

func (t *tx) Items() circulation.ItemStore {
	return txItems{tx: t}
}

func (t *tx) Loans() circulation.LoanStore {
	return txLoans{
		loanQueries: loanQueries{get: t.getLoan, all: t.allLoans},
		tx:          t,
	}
}

// Commit applies the staged writes atomically and releases the locks.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return circulation.ErrTxDone
	}

	t.store.apply(t.stagedItems, t.stagedLoans)
	t.finish()

	if t.store.logger != nil {
		t.store.logger.Debug(logMsgTxCommitted,
			logAttrLocks, len(t.keys),
			logAttrItemWrites, len(t.stagedItems),
			logAttrLoanWrites, len(t.stagedLoans))
	}

	return nil
}

// Rollback discards the staged writes and releases the locks. It is a no-op after Commit.
func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	staged := len(t.stagedItems) + len(t.stagedLoans)
	t.finish()

	if t.store.logger != nil && staged > 0 {
		t.store.logger.Debug(logMsgTxRolledBack, logAttrLocks, len(t.keys))
	}

	return nil
}

func (t *tx) finish() {
	t.done = true
	t.stagedItems = nil
	t.stagedLoans = nil
	t.store.locks.releaseAll(t.keys)
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

func (t *tx) getItem(itemID uuid.UUID) (circulation.Item, bool) {
	if item, ok := t.stagedItems[itemID]; ok {
		return item, true
	}

	return t.store.getItem(itemID)
}

func (t *tx) getLoan(loanID uuid.UUID) (circulation.Loan, bool) {
	if staged, ok := t.stagedLoans[loanID]; ok {
		return staged.loan, !staged.deleted
	}

	return t.store.getLoan(loanID)
}

func (t *tx) allLoans() map[uuid.UUID]circulation.Loan {
	loans := t.store.snapshotLoans()

	for id, staged := range t.stagedLoans {
		if staged.deleted {
			delete(loans, id)
			continue
		}

		loans[id] = staged.loan
	}

	return loans
}

/***** transactional stores *****/

type txItems struct {
	tx *tx
}

func (v txItems) Get(_ context.Context, itemID uuid.UUID) (circulation.Item, error) {
	if v.tx.done {
		return circulation.Item{}, circulation.ErrTxDone
	}

	item, ok := v.tx.getItem(itemID)
	if !ok {
		return circulation.Item{}, circulation.NewNotFoundError(circulation.EntityItem, itemID)
	}

	return item, nil
}

func (v txItems) Exists(_ context.Context, itemID uuid.UUID) (bool, error) {
	if v.tx.done {
		return false, circulation.ErrTxDone
	}

	_, ok := v.tx.getItem(itemID)

	return ok, nil
}

func (v txItems) Save(_ context.Context, item circulation.Item) error {
	if err := v.tx.requireLock(circulation.ItemLock(item.ID)); err != nil {
		return err
	}

	if err := item.Validate(); err != nil {
		return err
	}

	v.tx.stagedItems[item.ID] = item

	return nil
}

type txLoans struct {
	loanQueries
	tx *tx
}

func (v txLoans) Save(_ context.Context, loan circulation.Loan) error {
	if err := v.tx.requireLock(circulation.ItemLock(loan.ItemID)); err != nil {
		return err
	}

	v.tx.stagedLoans[loan.ID] = stagedLoan{loan: loan}

	return nil
}

func (v txLoans) Delete(_ context.Context, loanID uuid.UUID) error {
	if v.tx.done {
		return circulation.ErrTxDone
	}

	loan, ok := v.tx.getLoan(loanID)
	if !ok {
		return circulation.NewNotFoundError(circulation.EntityLoan, loanID)
	}

	if err := v.tx.requireLock(circulation.ItemLock(loan.ItemID)); err != nil {
		return err
	}

	v.tx.stagedLoans[loanID] = stagedLoan{loan: loan, deleted: true}

	return nil
}
