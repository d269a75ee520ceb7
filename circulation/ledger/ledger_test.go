package ledger_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/ledger"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/memengine"
	"github.com/AntonStoeckl/circulation-engine-go/testutil/helper"
)

func givenLedgerAndStore(t *testing.T, options ...ledger.Option) (*ledger.Ledger, *memengine.Store) {
	t.Helper()

	l, err := ledger.New(options...)
	require.NoError(t, err)

	store, err := memengine.NewStore()
	require.NoError(t, err)

	return l, store
}

func inTx(t *testing.T, ctx context.Context, store circulation.Store, item circulation.Item, fn func(tx circulation.Tx) error) error {
	t.Helper()

	tx, err := store.Begin(ctx, circulation.ItemLock(item.ID))
	require.NoError(t, err)

	if err = fn(tx); err != nil {
		require.NoError(t, tx.Rollback(ctx))
		return err
	}

	return tx.Commit(ctx)
}

func Test_Reserve_DecrementsAvailableCopies(t *testing.T) {
	// arrange
	ctx := context.Background()
	l, store := givenLedgerAndStore(t)
	item := helper.GivenItem(t, ctx, store, 2)

	// act
	var reserved circulation.Item
	err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
		var reserveErr error
		reserved, reserveErr = l.Reserve(ctx, tx.Items(), item.ID)
		return reserveErr
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, reserved.AvailableCopies)

	reloaded, err := store.Items().Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.AvailableCopies)
	assert.Equal(t, 2, reloaded.TotalCopies)
}

func Test_Reserve_FailsWithOutOfStock_WhenNoCopyLeft(t *testing.T) {
	// arrange
	ctx := context.Background()
	l, store := givenLedgerAndStore(t)
	item := helper.GivenItem(t, ctx, store, 1)

	require.NoError(t, inTx(t, ctx, store, item, func(tx circulation.Tx) error {
		_, err := l.Reserve(ctx, tx.Items(), item.ID)
		return err
	}))

	// act
	err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
		_, reserveErr := l.Reserve(ctx, tx.Items(), item.ID)
		return reserveErr
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrBusinessRuleViolation)
	assert.True(t, circulation.IsRejectedWith(err, circulation.ReasonOutOfStock))

	reloaded, getErr := store.Items().Get(ctx, item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 0, reloaded.AvailableCopies, "never below zero")
}

func Test_Reserve_FailsWithNotFound_ForUnknownItem(t *testing.T) {
	ctx := context.Background()
	l, store := givenLedgerAndStore(t)
	unknown := circulation.Item{ID: helper.GivenUniqueID(t)}

	err := inTx(t, ctx, store, unknown, func(tx circulation.Tx) error {
		_, reserveErr := l.Reserve(ctx, tx.Items(), unknown.ID)
		return reserveErr
	})

	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_Release_IncrementsAvailableCopies(t *testing.T) {
	ctx := context.Background()
	l, store := givenLedgerAndStore(t)
	item := helper.GivenItem(t, ctx, store, 3)

	err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
		if _, err := l.Reserve(ctx, tx.Items(), item.ID); err != nil {
			return err
		}

		released, err := l.Release(ctx, tx.Items(), item.ID)
		assert.Equal(t, 3, released.AvailableCopies)

		return err
	})

	require.NoError(t, err)
}

func Test_Release_IsInvariantViolation_WhenNothingIsLent(t *testing.T) {
	// arrange
	ctx := context.Background()
	logSpy := helper.NewLogHandlerSpy(false)
	l, store := givenLedgerAndStore(t, ledger.WithLogger(slog.New(logSpy)))
	item := helper.GivenItem(t, ctx, store, 2)

	// act
	err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
		_, releaseErr := l.Release(ctx, tx.Items(), item.ID)
		return releaseErr
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.NotErrorIs(t, err, circulation.ErrBusinessRuleViolation)
	assert.True(t, logSpy.HasErrorLogWithMessage("ledger: invariant violated").Assert())

	reloaded, getErr := store.Items().Get(ctx, item.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 2, reloaded.AvailableCopies, "never above total")
}

func Test_AdjustCapacity(t *testing.T) {
	tests := []struct {
		name              string
		total             int
		reserved          int
		newTotal          int
		expectedReason    circulation.RejectionReason
		expectedAvailable int
	}{
		{name: "grow", total: 2, reserved: 1, newTotal: 5, expectedAvailable: 4},
		{name: "shrink_to_lent_count", total: 3, reserved: 2, newTotal: 2, expectedAvailable: 0},
		{name: "shrink_below_lent_count", total: 3, reserved: 2, newTotal: 1, expectedReason: circulation.ReasonCapacityBelowOutstanding},
		{name: "zero_total", total: 1, reserved: 0, newTotal: 0, expectedReason: circulation.ReasonInvalidCapacity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			ctx := context.Background()
			l, store := givenLedgerAndStore(t)
			item := helper.GivenItem(t, ctx, store, tc.total)

			for i := 0; i < tc.reserved; i++ {
				require.NoError(t, inTx(t, ctx, store, item, func(tx circulation.Tx) error {
					_, err := l.Reserve(ctx, tx.Items(), item.ID)
					return err
				}))
			}

			// act
			err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
				_, adjustErr := l.AdjustCapacity(ctx, tx.Items(), item.ID, tc.newTotal)
				return adjustErr
			})

			// assert
			reloaded, getErr := store.Items().Get(ctx, item.ID)
			require.NoError(t, getErr)

			if tc.expectedReason != "" {
				assert.True(t, circulation.IsRejectedWith(err, tc.expectedReason))
				assert.Equal(t, tc.total, reloaded.TotalCopies)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.newTotal, reloaded.TotalCopies)
			assert.Equal(t, tc.expectedAvailable, reloaded.AvailableCopies)
		})
	}
}

func Test_Reserve_ConcurrentCallsNeverOversell(t *testing.T) {
	// arrange
	ctx := context.Background()
	l, store := givenLedgerAndStore(t)
	item := helper.GivenItem(t, ctx, store, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, outOfStock := 0, 0

	// act
	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := inTx(t, ctx, store, item, func(tx circulation.Tx) error {
				_, reserveErr := l.Reserve(ctx, tx.Items(), item.ID)
				return reserveErr
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case circulation.IsRejectedWith(err, circulation.ReasonOutOfStock):
				outOfStock++
			}
		}()
	}

	wg.Wait()

	// assert
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, outOfStock)

	reloaded, err := store.Items().Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.AvailableCopies)
}
