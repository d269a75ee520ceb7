package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/policy"
)

// SweepOverdue moves every ACTIVE loan whose due date lies before now to OVERDUE and returns how
// many loans changed. Each loan transitions in its own transaction after a fresh re-check, so the
// sweep can interleave with borrow and return traffic and running it twice changes nothing the
// second time. The ledger is never touched: an overdue copy is still lent.
//
// If ctx ends mid-sweep, the count so far is returned with ctx's error. Already committed
// transitions stay; the remaining loans are picked up by the next run.
func (c *Controller) SweepOverdue(ctx context.Context, now time.Time) (transitioned int, err error) {
	ctx, obs := c.observe(ctx, OperationSweepOverdue)
	defer func() {
		obs.annotate(LogAttrCount, transitioned)
		recordValue(ctx, c.metricsCollector, SweepTransitionsMetric, float64(transitioned), map[string]string{
			LogAttrStatus: StatusOf(err),
		})
		obs.finish(err)
	}()

	candidates, err := c.store.Loans().FindOverdueAsOf(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, candidate := range candidates {
		if err = c.waitForSweepTurn(ctx); err != nil {
			c.log(ctx, levelWarn, LogMsgSweepInterrupted, LogAttrCount, transitioned, LogAttrError, err.Error())
			return transitioned, err
		}

		changed, markErr := c.markOverdue(ctx, candidate, now)
		if errors.Is(markErr, circulation.ErrNotFound) {
			c.log(ctx, levelDebug, LogMsgSweepSkippedLoan, LogAttrLoanID, candidate.ID)
			continue
		}

		if markErr != nil {
			return transitioned, markErr
		}

		if changed {
			transitioned++
		}
	}

	return transitioned, nil
}

func (c *Controller) waitForSweepTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.sweepLimiter == nil {
		return nil
	}

	return c.sweepLimiter.Wait(ctx)
}

func (c *Controller) markOverdue(ctx context.Context, candidate circulation.Loan, now time.Time) (bool, error) {
	changed := false

	err := c.inTx(ctx, loanLocks(candidate.ItemID, candidate.BorrowerID), func(tx circulation.Tx) error {
		loan, getErr := tx.Loans().Get(ctx, candidate.ID)
		if getErr != nil {
			return getErr
		}

		if !policy.DecideOverdueTransition(loan, now).Approved() {
			return nil
		}

		loan.State = circulation.LoanStateOverdue
		changed = true

		return tx.Loans().Save(ctx, loan)
	})

	return changed && err == nil, err
}

// IsOverdue reports whether the loan is past due at the controller's current time.
func (c *Controller) IsOverdue(ctx context.Context, loanID uuid.UUID) (bool, error) {
	loan, err := c.store.Loans().Get(ctx, loanID)
	if err != nil {
		return false, err
	}

	return loan.IsOverdue(c.now()), nil
}

// DaysLate returns the whole days an outstanding loan is past due, 0 if it is not.
func (c *Controller) DaysLate(ctx context.Context, loanID uuid.UUID) (int, error) {
	loan, err := c.store.Loans().Get(ctx, loanID)
	if err != nil {
		return 0, err
	}

	return loan.DaysLate(c.now()), nil
}
