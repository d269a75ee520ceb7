package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// RegisterItem puts a new item into circulation with all copies available.
func (c *Controller) RegisterItem(ctx context.Context, itemID uuid.UUID, totalCopies int) (item circulation.Item, err error) {
	ctx, obs := c.observe(ctx, OperationRegisterItem, LogAttrItemID, itemID)
	defer func() { obs.finish(err) }()

	item, err = circulation.NewItem(itemID, totalCopies)
	if err != nil {
		return circulation.Item{}, &circulation.RuleViolationError{
			Reason: circulation.ReasonInvalidCapacity,
			ItemID: itemID,
			Detail: err.Error(),
		}
	}

	err = c.inTx(ctx, []circulation.LockKey{circulation.ItemLock(itemID)}, func(tx circulation.Tx) error {
		exists, existsErr := tx.Items().Exists(ctx, itemID)
		if existsErr != nil {
			return existsErr
		}

		if exists {
			return &circulation.RuleViolationError{
				Reason: circulation.ReasonInvalidState,
				ItemID: itemID,
				Detail: "item is already registered",
			}
		}

		return tx.Items().Save(ctx, item)
	})
	if err != nil {
		return circulation.Item{}, err
	}

	return item, nil
}

// ReviseCapacity changes an item's total copies through the ledger.
// Shrinking below the number of lent copies fails with ReasonCapacityBelowOutstanding.
func (c *Controller) ReviseCapacity(ctx context.Context, itemID uuid.UUID, newTotal int) (item circulation.Item, err error) {
	ctx, obs := c.observe(ctx, OperationReviseCapacity, LogAttrItemID, itemID)
	defer func() { obs.finish(err) }()

	err = c.inTx(ctx, []circulation.LockKey{circulation.ItemLock(itemID)}, func(tx circulation.Tx) error {
		var adjustErr error
		item, adjustErr = c.ledger.AdjustCapacity(ctx, tx.Items(), itemID, newTotal)

		return adjustErr
	})
	if err != nil {
		return circulation.Item{}, err
	}

	return item, nil
}

// AuditItem checks the counter invariant of one item against its outstanding loans.
// It runs under the item lock, so the counter and the loans are read consistently.
func (c *Controller) AuditItem(ctx context.Context, itemID uuid.UUID) (err error) {
	ctx, obs := c.observe(ctx, OperationAuditItem, LogAttrItemID, itemID)
	defer func() { obs.finish(err) }()

	return c.inTx(ctx, []circulation.LockKey{circulation.ItemLock(itemID)}, func(tx circulation.Tx) error {
		item, getErr := tx.Items().Get(ctx, itemID)
		if getErr != nil {
			return getErr
		}

		outstanding, findErr := tx.Loans().Find(ctx, circulation.BuildLoanFilter().ForItem(itemID).Outstanding().Finalize())
		if findErr != nil {
			return findErr
		}

		return item.CheckOutstanding(len(outstanding))
	})
}

// GetItem reads an item outside any transaction.
func (c *Controller) GetItem(ctx context.Context, itemID uuid.UUID) (circulation.Item, error) {
	return c.store.Items().Get(ctx, itemID)
}

// GetLoan reads a loan outside any transaction.
func (c *Controller) GetLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	return c.store.Loans().Get(ctx, loanID)
}

// FindLoans lists loans matching filter, ordered by loan date.
// A filter naming an unknown borrower or item fails with a *circulation.NotFoundError.
// Pass a context built with circulation.WithEventualConsistency to allow replica reads.
func (c *Controller) FindLoans(ctx context.Context, filter circulation.LoanFilter) ([]circulation.Loan, error) {
	if borrowerID, ok := filter.BorrowerID(); ok {
		if _, err := c.borrowers.Get(ctx, borrowerID); err != nil {
			return nil, err
		}
	}

	if itemID, ok := filter.ItemID(); ok {
		exists, err := c.store.Items().Exists(ctx, itemID)
		if err != nil {
			return nil, err
		}

		if !exists {
			return nil, circulation.NewNotFoundError(circulation.EntityItem, itemID)
		}
	}

	return c.store.Loans().Find(ctx, filter)
}

// CountLoansByState returns the number of loans per state, every state present.
func (c *Controller) CountLoansByState(ctx context.Context) (map[circulation.LoanState]int, error) {
	return c.store.Loans().CountByState(ctx)
}
