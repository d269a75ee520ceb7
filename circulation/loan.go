package circulation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LoanState is the lifecycle state of a Loan.
type LoanState string

const (
	LoanStateActive    LoanState = "ACTIVE"
	LoanStateOverdue   LoanState = "OVERDUE"
	LoanStateReturned  LoanState = "RETURNED"
	LoanStateCancelled LoanState = "CANCELLED"
)

const (
	returnNotePrefix = "Return: "
	notesSeparator   = " | "
	hoursPerDay      = 24
)

// AllLoanStates lists every state in lifecycle order.
func AllLoanStates() []LoanState {
	return []LoanState{LoanStateActive, LoanStateOverdue, LoanStateReturned, LoanStateCancelled}
}

// ParseLoanState converts a persisted state string back into a LoanState.
func ParseLoanState(s string) (LoanState, error) {
	state := LoanState(strings.ToUpper(strings.TrimSpace(s)))

	switch state {
	case LoanStateActive, LoanStateOverdue, LoanStateReturned, LoanStateCancelled:
		return state, nil
	default:
		return "", ErrInvalidLoanState
	}
}

func (s LoanState) String() string {
	return string(s)
}

// IsOutstanding reports whether a loan in this state holds a copy (ACTIVE or OVERDUE).
func (s LoanState) IsOutstanding() bool {
	return s == LoanStateActive || s == LoanStateOverdue
}

// IsTerminal reports whether no further transition is possible.
func (s LoanState) IsTerminal() bool {
	return s == LoanStateReturned || s == LoanStateCancelled
}

// CanTransitionTo encodes the loan state machine:
//
//	ACTIVE  -> OVERDUE | RETURNED | CANCELLED
//	OVERDUE -> RETURNED
func (s LoanState) CanTransitionTo(next LoanState) bool {
	switch s {
	case LoanStateActive:
		return next == LoanStateOverdue || next == LoanStateReturned || next == LoanStateCancelled
	case LoanStateOverdue:
		return next == LoanStateReturned
	default:
		return false
	}
}

// Loan binds one copy of an item to one borrower.
type Loan struct {
	ID         uuid.UUID
	ItemID     uuid.UUID
	BorrowerID uuid.UUID
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	State      LoanState
	Notes      string
}

// IsOutstanding reports whether the loan currently holds a copy of its item.
func (l Loan) IsOutstanding() bool {
	return l.State.IsOutstanding()
}

// IsOverdue reports whether an outstanding loan is past its due date at now.
// A loan already swept to OVERDUE keeps reading true; the stored state only caches this predicate.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.IsOutstanding() && now.After(l.DueDate)
}

// DaysLate returns the whole days between the due date and now, never negative.
// Loans that no longer hold a copy are never late.
func (l Loan) DaysLate(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}

	return int(now.Sub(l.DueDate).Hours() / hoursPerDay)
}

// WithReturnNote returns notes with a return remark appended.
// Prior notes are kept and separated from the new remark.
func (l Loan) WithReturnNote(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return l.Notes
	}

	remark := returnNotePrefix + note
	if l.Notes == "" {
		return remark
	}

	return l.Notes + notesSeparator + remark
}
