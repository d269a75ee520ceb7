package lifecycle_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation/lifecycle"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/policy"
)

func Test_Sweeper_RunsUntilContextIsDone(t *testing.T) {
	// arrange
	ctx := context.Background()
	f := givenFixture(t)
	item := f.givenItem(t, ctx, 1)
	f.givenActiveLoan(t, ctx, item.ID, f.givenBorrower(t, true))
	f.clock.Advance(policy.DefaultLoanPeriod + time.Hour)

	var runs, transitioned atomic.Int64

	sweeper, err := lifecycle.NewSweeper(f.controller, 10*time.Millisecond,
		lifecycle.WithRunTimeout(time.Second),
		lifecycle.WithRunHook(func(n int, _ error) {
			runs.Add(1)
			transitioned.Add(int64(n))
		}),
	)
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	// act
	err = sweeper.Run(runCtx)

	// assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, runs.Load(), int64(2))
	assert.Equal(t, int64(1), transitioned.Load())
}

func Test_NewSweeper_RejectsInvalidConfiguration(t *testing.T) {
	f := givenFixture(t)

	_, err := lifecycle.NewSweeper(nil, time.Second)
	assert.Error(t, err)

	_, err = lifecycle.NewSweeper(f.controller, 0)
	assert.Error(t, err)

	_, err = lifecycle.NewSweeper(f.controller, time.Second, lifecycle.WithRunTimeout(0))
	assert.Error(t, err)
}
