package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/policy"
)

// BorrowRequest asks for a new loan. A zero DueDate means the default loan period.
type BorrowRequest struct {
	ItemID     uuid.UUID
	BorrowerID uuid.UUID
	DueDate    time.Time
	Notes      string
}

// ReturnReceipt describes a completed return.
type ReturnReceipt struct {
	Loan     circulation.Loan
	Item     circulation.Item
	Late     bool
	DaysLate int
}

// CreateLoan lends one copy of the item to the borrower.
//
// The due date is validated first, then the borrower and the item are resolved (absent ones fail
// with circulation.ErrNotFound). Under the item and borrower locks the borrow policy runs on a fresh
// snapshot, the ledger reserves a copy, and the ACTIVE loan is written; all in one transaction.
func (c *Controller) CreateLoan(ctx context.Context, req BorrowRequest) (loan circulation.Loan, err error) {
	ctx, obs := c.observe(ctx, OperationCreateLoan, LogAttrItemID, req.ItemID, LogAttrBorrowerID, req.BorrowerID)
	defer func() { obs.finish(err) }()

	now := c.now()

	dueDate, err := policy.ResolveDueDate(now, req.DueDate)
	if err != nil {
		var violation *circulation.RuleViolationError
		if errors.As(err, &violation) {
			violation.ItemID = req.ItemID
			violation.BorrowerID = req.BorrowerID
		}

		return circulation.Loan{}, err
	}

	borrower, err := c.borrowers.Get(ctx, req.BorrowerID)
	if err != nil {
		return circulation.Loan{}, err
	}

	loanID, err := c.newID()
	if err != nil {
		return circulation.Loan{}, err
	}

	err = c.inTx(ctx, loanLocks(req.ItemID, req.BorrowerID), func(tx circulation.Tx) error {
		item, getErr := tx.Items().Get(ctx, req.ItemID)
		if getErr != nil {
			return getErr
		}

		outstanding, findErr := tx.Loans().FindActiveByBorrower(ctx, req.BorrowerID)
		if findErr != nil {
			return findErr
		}

		decision := policy.DecideBorrow(policy.BorrowSnapshot{
			ItemID:           req.ItemID,
			BorrowerID:       req.BorrowerID,
			Item:             &item,
			Borrower:         &borrower,
			OutstandingLoans: outstanding,
			Now:              now,
		})
		if decisionErr := decision.Err(); decisionErr != nil {
			return decisionErr
		}

		if _, reserveErr := c.ledger.Reserve(ctx, tx.Items(), req.ItemID); reserveErr != nil {
			return reserveErr
		}

		loan = circulation.Loan{
			ID:         loanID,
			ItemID:     req.ItemID,
			BorrowerID: req.BorrowerID,
			LoanDate:   now,
			DueDate:    dueDate,
			State:      circulation.LoanStateActive,
			Notes:      strings.TrimSpace(req.Notes),
		}

		return tx.Loans().Save(ctx, loan)
	})
	if err != nil {
		return circulation.Loan{}, err
	}

	obs.annotate(LogAttrLoanID, loan.ID)

	return loan, nil
}

// ReturnLoan takes a copy back. The ledger release and the RETURNED transition commit together.
// notes, if not blank, are appended to the loan's notes.
func (c *Controller) ReturnLoan(ctx context.Context, loanID uuid.UUID, notes string) (receipt ReturnReceipt, err error) {
	ctx, obs := c.observe(ctx, OperationReturnLoan, LogAttrLoanID, loanID)
	defer func() { obs.finish(err) }()

	located, err := c.store.Loans().Get(circulation.WithStrongConsistency(ctx), loanID)
	if err != nil {
		return ReturnReceipt{}, err
	}

	obs.annotate(LogAttrItemID, located.ItemID, LogAttrBorrowerID, located.BorrowerID)
	now := c.now()

	err = c.inTx(ctx, loanLocks(located.ItemID, located.BorrowerID), func(tx circulation.Tx) error {
		loan, getErr := tx.Loans().Get(ctx, loanID)
		if getErr != nil {
			return getErr
		}

		if decisionErr := policy.DecideReturn(loan).Err(); decisionErr != nil {
			return decisionErr
		}

		receipt.Late = now.After(loan.DueDate)
		receipt.DaysLate = loan.DaysLate(now)

		item, releaseErr := c.ledger.Release(ctx, tx.Items(), loan.ItemID)
		if releaseErr != nil {
			return releaseErr
		}

		loan.State = circulation.LoanStateReturned
		loan.ReturnDate = &now
		loan.Notes = loan.WithReturnNote(notes)

		receipt.Loan = loan
		receipt.Item = item

		return tx.Loans().Save(ctx, loan)
	})
	if err != nil {
		return ReturnReceipt{}, err
	}

	if receipt.Late {
		obs.annotate(LogAttrDaysLate, receipt.DaysLate)
	}

	return receipt, nil
}

// CancelLoan voids an ACTIVE loan and puts its copy back. OVERDUE loans cannot be cancelled.
// With WithPurgeOnCancel the loan row is deleted; the returned Loan then is its last state, CANCELLED.
func (c *Controller) CancelLoan(ctx context.Context, loanID uuid.UUID) (loan circulation.Loan, err error) {
	ctx, obs := c.observe(ctx, OperationCancelLoan, LogAttrLoanID, loanID)
	defer func() { obs.finish(err) }()

	located, err := c.store.Loans().Get(circulation.WithStrongConsistency(ctx), loanID)
	if err != nil {
		return circulation.Loan{}, err
	}

	obs.annotate(LogAttrItemID, located.ItemID, LogAttrBorrowerID, located.BorrowerID)

	err = c.inTx(ctx, loanLocks(located.ItemID, located.BorrowerID), func(tx circulation.Tx) error {
		current, getErr := tx.Loans().Get(ctx, loanID)
		if getErr != nil {
			return getErr
		}

		if decisionErr := policy.DecideCancel(current).Err(); decisionErr != nil {
			return decisionErr
		}

		if _, releaseErr := c.ledger.Release(ctx, tx.Items(), current.ItemID); releaseErr != nil {
			return releaseErr
		}

		current.State = circulation.LoanStateCancelled
		loan = current

		if c.purgeOnCancel {
			return tx.Loans().Delete(ctx, loanID)
		}

		return tx.Loans().Save(ctx, current)
	})
	if err != nil {
		return circulation.Loan{}, err
	}

	return loan, nil
}
