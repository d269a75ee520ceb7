package policy

import (
	"time"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// DecideReturn approves returning an ACTIVE or OVERDUE loan.
// A RETURNED loan is rejected with AlreadyReturned, a CANCELLED one with InvalidState.
func DecideReturn(loan circulation.Loan) Decision {
	switch loan.State {
	case circulation.LoanStateActive, circulation.LoanStateOverdue:
		return Approve()

	case circulation.LoanStateReturned:
		return Reject(loanViolation(loan, circulation.ReasonAlreadyReturned, "loan was already returned"))

	default:
		return Reject(loanViolation(loan, circulation.ReasonInvalidState, "cannot return a "+loan.State.String()+" loan"))
	}
}

// DecideCancel approves cancelling an ACTIVE loan only. An OVERDUE loan is past term and has to be returned.
func DecideCancel(loan circulation.Loan) Decision {
	switch loan.State {
	case circulation.LoanStateActive:
		return Approve()

	case circulation.LoanStateOverdue:
		return Reject(loanViolation(loan, circulation.ReasonInvalidState, "overdue loans must be returned, not cancelled"))

	default:
		return Reject(loanViolation(loan, circulation.ReasonInvalidState, "cannot cancel a "+loan.State.String()+" loan"))
	}
}

// DecideOverdueTransition approves flipping an ACTIVE loan whose due date lies before now to OVERDUE.
// Every other loan yields NoChange, which makes the sweep idempotent.
func DecideOverdueTransition(loan circulation.Loan, now time.Time) Decision {
	if loan.State == circulation.LoanStateActive && loan.DueDate.Before(now) {
		return Approve()
	}

	return NoChange()
}

func loanViolation(loan circulation.Loan, reason circulation.RejectionReason, detail string) *circulation.RuleViolationError {
	return &circulation.RuleViolationError{
		Reason:     reason,
		LoanID:     loan.ID,
		ItemID:     loan.ItemID,
		BorrowerID: loan.BorrowerID,
		Detail:     detail,
	}
}
