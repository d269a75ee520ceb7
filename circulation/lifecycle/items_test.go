package lifecycle_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/testutil/helper"
)

func Test_RegisterItem(t *testing.T) {
	ctx := context.Background()
	f := givenFixture(t)
	itemID := helper.GivenUniqueID(t)

	item, err := f.controller.RegisterItem(ctx, itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, circulation.Item{ID: itemID, TotalCopies: 4, AvailableCopies: 4}, item)

	_, err = f.controller.RegisterItem(ctx, itemID, 2)
	assert.True(t, circulation.IsRejectedWith(err, circulation.ReasonInvalidState))

	_, err = f.controller.RegisterItem(ctx, helper.GivenUniqueID(t), 0)
	assert.True(t, circulation.IsRejectedWith(err, circulation.ReasonInvalidCapacity))
}

func Test_ReviseCapacity_KeepsLentCopies(t *testing.T) {
	// arrange
	ctx := context.Background()
	f := givenFixture(t)
	item := f.givenItem(t, ctx, 3)
	f.givenActiveLoan(t, ctx, item.ID, f.givenBorrower(t, true))
	f.givenActiveLoan(t, ctx, item.ID, f.givenBorrower(t, true))

	// act
	grown, growErr := f.controller.ReviseCapacity(ctx, item.ID, 5)
	_, shrinkErr := f.controller.ReviseCapacity(ctx, item.ID, 1)

	// assert
	require.NoError(t, growErr)
	assert.Equal(t, 5, grown.TotalCopies)
	assert.Equal(t, 3, grown.AvailableCopies)

	assert.True(t, circulation.IsRejectedWith(shrinkErr, circulation.ReasonCapacityBelowOutstanding))
	helper.AssertCounterInvariant(t, ctx, f.store, item.ID)
}

func Test_AuditItem(t *testing.T) {
	ctx := context.Background()
	f := givenFixture(t)
	item := f.givenItem(t, ctx, 2)
	f.givenActiveLoan(t, ctx, item.ID, f.givenBorrower(t, true))

	require.NoError(t, f.controller.AuditItem(ctx, item.ID))

	// drift the counter: a copy disappears without a loan
	tx, err := f.store.Begin(ctx, circulation.ItemLock(item.ID))
	require.NoError(t, err)
	require.NoError(t, tx.Items().Save(ctx, circulation.Item{ID: item.ID, TotalCopies: 2, AvailableCopies: 0}))
	require.NoError(t, tx.Commit(ctx))

	err = f.controller.AuditItem(ctx, item.ID)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
}

func Test_FindLoans_FiltersByBorrowerAndState(t *testing.T) {
	ctx := context.Background()
	f := givenFixture(t)
	borrower := f.givenBorrower(t, true)
	first := f.givenActiveLoan(t, ctx, f.givenItem(t, ctx, 1).ID, borrower)
	second := f.givenActiveLoan(t, ctx, f.givenItem(t, ctx, 1).ID, borrower)
	f.givenActiveLoan(t, ctx, f.givenItem(t, ctx, 1).ID, f.givenBorrower(t, true))

	_, err := f.controller.ReturnLoan(ctx, first.ID, "")
	require.NoError(t, err)

	outstanding, err := f.controller.FindLoans(ctx, circulation.BuildLoanFilter().ForBorrower(borrower).Outstanding().Finalize())
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, second.ID, outstanding[0].ID)

	all, err := f.controller.FindLoans(ctx, circulation.BuildLoanFilter().ForBorrower(borrower).Finalize())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func Test_FindLoans_FailsForUnknownBorrowerOrItem(t *testing.T) {
	// arrange
	ctx := context.Background()
	f := givenFixture(t)
	item := f.givenItem(t, ctx, 1)
	borrower := f.givenBorrower(t, true)

	testCases := []struct {
		name   string
		filter circulation.LoanFilter
		entity string
	}{
		{"unknown borrower", circulation.BuildLoanFilter().ForBorrower(uuid.New()).Finalize(), circulation.EntityBorrower},
		{"unknown item", circulation.BuildLoanFilter().ForItem(uuid.New()).Finalize(), circulation.EntityItem},
		{"known borrower, unknown item", circulation.BuildLoanFilter().ForBorrower(borrower).ForItem(uuid.New()).Finalize(), circulation.EntityItem},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			loans, err := f.controller.FindLoans(ctx, tc.filter)

			// assert
			var notFound *circulation.NotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, tc.entity, notFound.Entity)
			assert.Nil(t, loans)
		})
	}

	known, err := f.controller.FindLoans(ctx, circulation.BuildLoanFilter().ForBorrower(borrower).ForItem(item.ID).Finalize())
	require.NoError(t, err)
	assert.Empty(t, known)
}
