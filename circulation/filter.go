package circulation

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

/***** LoanFilter *****/

// LoanFilter selects loans for list queries. The zero value matches every loan.
// All set criteria must match (AND).
type LoanFilter struct {
	borrowerID   uuid.UUID
	itemID       uuid.UUID
	states       []LoanState
	dueBefore    time.Time
	returnedLate bool
	limit        int
}

func (f LoanFilter) BorrowerID() (uuid.UUID, bool) {
	return f.borrowerID, f.borrowerID != uuid.Nil
}

func (f LoanFilter) ItemID() (uuid.UUID, bool) {
	return f.itemID, f.itemID != uuid.Nil
}

func (f LoanFilter) States() []LoanState {
	return f.states
}

func (f LoanFilter) DueBefore() (time.Time, bool) {
	return f.dueBefore, !f.dueBefore.IsZero()
}

func (f LoanFilter) ReturnedLate() bool {
	return f.returnedLate
}

// Limit is the maximum number of loans to return, 0 means unlimited.
func (f LoanFilter) Limit() int {
	return f.limit
}

// Matches evaluates the filter against a single loan. Engines that cannot push the filter down
// into a query language use it directly.
func (f LoanFilter) Matches(loan Loan) bool {
	if f.borrowerID != uuid.Nil && loan.BorrowerID != f.borrowerID {
		return false
	}

	if f.itemID != uuid.Nil && loan.ItemID != f.itemID {
		return false
	}

	if len(f.states) > 0 && !slices.Contains(f.states, loan.State) {
		return false
	}

	if !f.dueBefore.IsZero() && !loan.DueDate.Before(f.dueBefore) {
		return false
	}

	if f.returnedLate && !(loan.State == LoanStateReturned && loan.ReturnDate != nil && loan.ReturnDate.After(loan.DueDate)) {
		return false
	}

	return true
}

/***** LoanFilterBuilder *****/

// LoanFilterBuilder builds a LoanFilter:
//
//	filter := circulation.BuildLoanFilter().
//		ForBorrower(borrowerID).
//		InStates(circulation.LoanStateActive, circulation.LoanStateOverdue).
//		Finalize()
type LoanFilterBuilder struct {
	filter LoanFilter
}

// BuildLoanFilter starts an empty filter.
func BuildLoanFilter() *LoanFilterBuilder {
	return &LoanFilterBuilder{}
}

func (b *LoanFilterBuilder) ForBorrower(borrowerID uuid.UUID) *LoanFilterBuilder {
	b.filter.borrowerID = borrowerID
	return b
}

func (b *LoanFilterBuilder) ForItem(itemID uuid.UUID) *LoanFilterBuilder {
	b.filter.itemID = itemID
	return b
}

// InStates adds states to match (OR). Duplicates are dropped.
func (b *LoanFilterBuilder) InStates(states ...LoanState) *LoanFilterBuilder {
	for _, state := range states {
		if !slices.Contains(b.filter.states, state) {
			b.filter.states = append(b.filter.states, state)
		}
	}

	return b
}

// Outstanding is a shortcut for InStates(ACTIVE, OVERDUE).
func (b *LoanFilterBuilder) Outstanding() *LoanFilterBuilder {
	return b.InStates(LoanStateActive, LoanStateOverdue)
}

// DueBefore matches loans with a due date strictly before t.
func (b *LoanFilterBuilder) DueBefore(t time.Time) *LoanFilterBuilder {
	b.filter.dueBefore = t
	return b
}

// ReturnedLate matches RETURNED loans whose return date is after their due date.
func (b *LoanFilterBuilder) ReturnedLate() *LoanFilterBuilder {
	b.filter.returnedLate = true
	return b
}

func (b *LoanFilterBuilder) Limit(n int) *LoanFilterBuilder {
	if n > 0 {
		b.filter.limit = n
	}

	return b
}

func (b *LoanFilterBuilder) Finalize() LoanFilter {
	f := b.filter
	f.states = slices.Clone(b.filter.states)

	return f
}

// SortLoans orders loans by loan date, then ID. All engines return list results in this order.
func SortLoans(loans []Loan) {
	slices.SortFunc(loans, func(a, b Loan) int {
		if c := a.LoanDate.Compare(b.LoanDate); c != 0 {
			return c
		}

		return slices.Compare(a.ID[:], b.ID[:])
	})
}
