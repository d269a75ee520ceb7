package memengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// loanQueries implements the read side of circulation.LoanStore over a loan source.
// Inside a transaction the source overlays staged writes on the committed state.
type loanQueries struct {
	get func(loanID uuid.UUID) (circulation.Loan, bool)
	all func() map[uuid.UUID]circulation.Loan
}

func (q loanQueries) Get(_ context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	loan, ok := q.get(loanID)
	if !ok {
		return circulation.Loan{}, circulation.NewNotFoundError(circulation.EntityLoan, loanID)
	}

	return loan, nil
}

func (q loanQueries) FindActiveByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]circulation.Loan, error) {
	return q.Find(ctx, circulation.BuildLoanFilter().ForBorrower(borrowerID).Outstanding().Finalize())
}

func (q loanQueries) FindOverdueAsOf(ctx context.Context, date time.Time) ([]circulation.Loan, error) {
	return q.Find(ctx, circulation.BuildLoanFilter().InStates(circulation.LoanStateActive).DueBefore(date).Finalize())
}

func (q loanQueries) Find(ctx context.Context, filter circulation.LoanFilter) ([]circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := make([]circulation.Loan, 0)
	for _, loan := range q.all() {
		if filter.Matches(loan) {
			found = append(found, loan)
		}
	}

	circulation.SortLoans(found)

	if limit := filter.Limit(); limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	return found, nil
}

func (q loanQueries) CountByState(ctx context.Context) (map[circulation.LoanState]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[circulation.LoanState]int, len(circulation.AllLoanStates()))
	for _, state := range circulation.AllLoanStates() {
		counts[state] = 0
	}

	for _, loan := range q.all() {
		counts[loan.State]++
	}

	return counts, nil
}
