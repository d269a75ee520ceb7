package helper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// FixedNow is the reference instant most tests run at.
var FixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

// GivenItem saves a fresh item with all copies available.
func GivenItem(t testing.TB, ctx context.Context, store circulation.Store, totalCopies int) circulation.Item {
	t.Helper()

	item, err := circulation.NewItem(GivenUniqueID(t), totalCopies)
	require.NoError(t, err, "error in arranging test data")

	tx, err := store.Begin(ctx, circulation.ItemLock(item.ID))
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, tx.Items().Save(ctx, item), "error in arranging test data")
	require.NoError(t, tx.Commit(ctx), "error in arranging test data")

	return item
}

// GivenLoanRow writes a loan straight into the store and takes the matching copy off the item's counter,
// so the counter invariant holds. Only outstanding loans touch the counter.
func GivenLoanRow(t testing.TB, ctx context.Context, store circulation.Store, loan circulation.Loan) circulation.Loan {
	t.Helper()

	if loan.ID == uuid.Nil {
		loan.ID = GivenUniqueID(t)
	}

	tx, err := store.Begin(ctx, circulation.ItemLock(loan.ItemID), circulation.BorrowerLock(loan.BorrowerID))
	require.NoError(t, err, "error in arranging test data")

	if loan.IsOutstanding() {
		item, getErr := tx.Items().Get(ctx, loan.ItemID)
		require.NoError(t, getErr, "error in arranging test data")

		item.AvailableCopies--
		require.NoError(t, tx.Items().Save(ctx, item), "error in arranging test data")
	}

	require.NoError(t, tx.Loans().Save(ctx, loan), "error in arranging test data")
	require.NoError(t, tx.Commit(ctx), "error in arranging test data")

	return loan
}

// AssertCounterInvariant checks availableCopies == totalCopies - outstanding loans for the item.
func AssertCounterInvariant(t testing.TB, ctx context.Context, store circulation.Store, itemID uuid.UUID) {
	t.Helper()

	item, err := store.Items().Get(ctx, itemID)
	require.NoError(t, err)

	outstanding, err := store.Loans().Find(ctx, circulation.BuildLoanFilter().ForItem(itemID).Outstanding().Finalize())
	require.NoError(t, err)

	assert.NoError(t, item.CheckOutstanding(len(outstanding)), "counter invariant violated")
}

// FixedClock returns a clock function that always reports now.
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time {
		return now
	}
}
