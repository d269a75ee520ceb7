package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	// MaxOutstandingLoans is the number of simultaneous ACTIVE+OVERDUE loans a borrower may hold.
	MaxOutstandingLoans = 3

	// DefaultLoanPeriod is added to the loan date when no due date is requested.
	DefaultLoanPeriod = 14 * 24 * time.Hour
)

// BorrowSnapshot is everything DecideBorrow looks at. A nil Item or Borrower means "does not exist".
type BorrowSnapshot struct {
	ItemID           uuid.UUID
	BorrowerID       uuid.UUID
	Item             *circulation.Item
	Borrower         *circulation.Borrower
	OutstandingLoans []circulation.Loan // the borrower's ACTIVE and OVERDUE loans, any item
	Now              time.Time
}

// DecideBorrow approves a new loan only if all of these hold, checked in this order:
//
//	ItemUnavailable:    the item exists and has an available copy
//	BorrowerIneligible: the borrower exists and is active
//	DuplicateLoan:      the borrower holds no outstanding loan of this item
//	HasOverdueLoans:    none of the borrower's outstanding loans is overdue
//	LoanLimitReached:   the borrower holds fewer than MaxOutstandingLoans outstanding loans
//
// The first violated rule is reported.
func DecideBorrow(s BorrowSnapshot) Decision {
	if s.Item == nil || !s.Item.HasAvailableCopy() {
		return Reject(s.violation(circulation.ReasonItemUnavailable, "no copy available"))
	}

	if s.Borrower == nil || !s.Borrower.Active {
		return Reject(s.violation(circulation.ReasonBorrowerIneligible, "borrower is not active"))
	}

	overdue := 0
	for _, loan := range s.OutstandingLoans {
		if loan.ItemID == s.ItemID {
			violation := s.violation(circulation.ReasonDuplicateLoan, "borrower already holds a copy")
			violation.LoanID = loan.ID

			return Reject(violation)
		}

		if loan.State == circulation.LoanStateOverdue || loan.IsOverdue(s.Now) {
			overdue++
		}
	}

	if overdue > 0 {
		return Reject(s.violation(circulation.ReasonHasOverdueLoans, fmt.Sprintf("%d overdue loan(s)", overdue)))
	}

	if len(s.OutstandingLoans) >= MaxOutstandingLoans {
		return Reject(s.violation(
			circulation.ReasonLoanLimitReached,
			fmt.Sprintf("%d of %d loans outstanding", len(s.OutstandingLoans), MaxOutstandingLoans),
		))
	}

	return Approve()
}

func (s BorrowSnapshot) violation(reason circulation.RejectionReason, detail string) *circulation.RuleViolationError {
	return &circulation.RuleViolationError{
		Reason:     reason,
		ItemID:     s.ItemID,
		BorrowerID: s.BorrowerID,
		Detail:     detail,
	}
}

// ResolveDueDate returns the due date of a loan created at loanDate.
// A zero requested date defaults to loanDate + DefaultLoanPeriod; otherwise it must lie strictly after loanDate.
func ResolveDueDate(loanDate, requested time.Time) (time.Time, error) {
	if requested.IsZero() {
		return loanDate.Add(DefaultLoanPeriod), nil
	}

	if !requested.After(loanDate) {
		return time.Time{}, &circulation.RuleViolationError{
			Reason: circulation.ReasonInvalidDueDate,
			Detail: fmt.Sprintf("due date %s is not after loan date %s", requested.Format(time.RFC3339), loanDate.Format(time.RFC3339)),
		}
	}

	return requested, nil
}
