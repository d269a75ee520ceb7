package sqlengine_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/sqlengine"
	"github.com/AntonStoeckl/circulation-engine-go/testutil/helper"
)

func givenSQLiteStore(t *testing.T, options ...sqlengine.Option) *sqlengine.Store {
	t.Helper()

	db, err := sqlengine.OpenSQLite(":memory:", 0)
	require.NoError(t, err, "error in arranging test data")
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlengine.NewStoreFromSQLite(db, options...)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.Migrate(context.Background()), "error in arranging test data")

	return store
}

func givenLoan(t *testing.T, itemID uuid.UUID, loanDate time.Time, state circulation.LoanState) circulation.Loan {
	t.Helper()

	return circulation.Loan{
		ID:         helper.GivenUniqueID(t),
		ItemID:     itemID,
		BorrowerID: helper.GivenUniqueID(t),
		LoanDate:   loanDate,
		DueDate:    loanDate.Add(14 * 24 * time.Hour),
		State:      state,
	}
}

func Test_FactoryFunctions_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	testCases := []struct {
		name    string
		factory func() (*sqlengine.Store, error)
	}{
		{"NewStoreFromPGXPool", func() (*sqlengine.Store, error) { return sqlengine.NewStoreFromPGXPool(nil) }},
		{"NewStoreFromPGXPoolAndReplica", func() (*sqlengine.Store, error) {
			return sqlengine.NewStoreFromPGXPoolAndReplica(nil, (*pgxpool.Pool)(nil))
		}},
		{"NewStoreFromSQLDB", func() (*sqlengine.Store, error) { return sqlengine.NewStoreFromSQLDB(nil) }},
		{"NewStoreFromSQLDBAndReplica", func() (*sqlengine.Store, error) {
			return sqlengine.NewStoreFromSQLDBAndReplica(nil, (*sql.DB)(nil))
		}},
		{"NewStoreFromSQLX", func() (*sqlengine.Store, error) { return sqlengine.NewStoreFromSQLX(nil) }},
		{"NewStoreFromSQLXAndReplica", func() (*sqlengine.Store, error) {
			return sqlengine.NewStoreFromSQLXAndReplica(nil, (*sqlx.DB)(nil))
		}},
		{"NewStoreFromSQLite", func() (*sqlengine.Store, error) { return sqlengine.NewStoreFromSQLite(nil) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := tc.factory()

			assert.ErrorIs(t, err, circulation.ErrNilDatabaseConnection)
			assert.Nil(t, store)
		})
	}
}

func Test_FactoryFunctions_ShouldFail_WithEmptyTableName(t *testing.T) {
	db, err := sqlengine.OpenSQLite(":memory:", 0)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = sqlengine.NewStoreFromSQLite(db, sqlengine.WithItemsTableName(""))
	assert.ErrorIs(t, err, circulation.ErrEmptyTableNameSupplied)

	_, err = sqlengine.NewStoreFromSQLite(db, sqlengine.WithLoansTableName(""))
	assert.ErrorIs(t, err, circulation.ErrEmptyTableNameSupplied)
}

func Test_OpenSQLite_AppliesBusyTimeoutAndForeignKeys(t *testing.T) {
	testCases := []struct {
		name        string
		path        string
		lockTimeout time.Duration
		wantTimeout int
	}{
		{name: "custom timeout", path: filepath.Join(t.TempDir(), "custom.db"), lockTimeout: 1500 * time.Millisecond, wantTimeout: 1500},
		{name: "default timeout", path: filepath.Join(t.TempDir(), "default.db"), wantTimeout: 5000},
		{name: "path with query", path: filepath.Join(t.TempDir(), "query.db") + "?mode=rwc", lockTimeout: time.Second, wantTimeout: 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			db, err := sqlengine.OpenSQLite(tc.path, tc.lockTimeout)
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			// assert
			var busyTimeout, foreignKeys int
			require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
			require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
			assert.Equal(t, tc.wantTimeout, busyTimeout)
			assert.Equal(t, 1, foreignKeys)
		})
	}
}

func Test_Migrate_IsRepeatable_WithCustomTableNames(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t, sqlengine.WithItemsTableName("catalogue"), sqlengine.WithLoansTableName("lendings"))

	require.NoError(t, store.Migrate(ctx))

	for _, statement := range store.Schema() {
		assert.NotContains(t, statement, "items ")
	}

	item := helper.GivenItem(t, ctx, store, 2)
	found, err := store.Items().Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, found)
}

func Test_Items_SaveGetExists(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 3)

	// act
	tx, err := store.Begin(ctx, circulation.ItemLock(item.ID))
	require.NoError(t, err)

	item.AvailableCopies = 1
	require.NoError(t, tx.Items().Save(ctx, item))
	require.NoError(t, tx.Commit(ctx))

	// assert
	found, err := store.Items().Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, found)

	exists, err := store.Items().Exists(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Items().Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Items().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_Items_Save_RejectsBrokenCounter(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t)
	itemID := helper.GivenUniqueID(t)

	err := store.Items().Save(ctx, circulation.Item{ID: itemID, TotalCopies: 1, AvailableCopies: 2})

	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)

	exists, existsErr := store.Items().Exists(ctx, itemID)
	require.NoError(t, existsErr)
	assert.False(t, exists)
}

func Test_Tx_RequiresTheItemLockForWrites(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 1)

	tx, err := store.Begin(ctx, circulation.BorrowerLock(uuid.New()))
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	assert.ErrorIs(t, tx.Items().Save(ctx, item), circulation.ErrLockNotHeld)
	assert.ErrorIs(t, tx.Loans().Save(ctx, givenLoan(t, item.ID, helper.FixedNow, circulation.LoanStateActive)), circulation.ErrLockNotHeld)
}

func Test_Tx_RollbackDiscardsWrites(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 2)
	loan := givenLoan(t, item.ID, helper.FixedNow, circulation.LoanStateActive)

	// act
	tx, err := store.Begin(ctx, circulation.ItemLock(item.ID), circulation.BorrowerLock(loan.BorrowerID))
	require.NoError(t, err)

	require.NoError(t, tx.Items().Save(ctx, circulation.Item{ID: item.ID, TotalCopies: 2, AvailableCopies: 1}))
	require.NoError(t, tx.Loans().Save(ctx, loan))

	staged, err := tx.Loans().Get(ctx, loan.ID)
	require.NoError(t, err, "a transaction sees its own writes")
	assert.Equal(t, loan.ID, staged.ID)

	require.NoError(t, tx.Rollback(ctx))

	// assert
	_, err = store.Loans().Get(ctx, loan.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	found, err := store.Items().Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.AvailableCopies)
}

func Test_Tx_CommitTwiceFails_RollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), circulation.ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx))

	_, err = tx.Items().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrTxDone)
}

func Test_Loans_SaveGetUpdateDelete(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 1)
	loan := givenLoan(t, item.ID, helper.FixedNow, circulation.LoanStateActive)
	loan.Notes = "first"

	// act + assert
	require.NoError(t, store.Loans().Save(ctx, loan))

	found, err := store.Loans().Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan, found)
	assert.Nil(t, found.ReturnDate)

	returned := helper.FixedNow.Add(20 * 24 * time.Hour)
	loan.State = circulation.LoanStateReturned
	loan.ReturnDate = &returned
	loan.Notes = "first | Return: ok"
	require.NoError(t, store.Loans().Save(ctx, loan))

	found, err = store.Loans().Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan, found)

	require.NoError(t, store.Loans().Delete(ctx, loan.ID))

	_, err = store.Loans().Get(ctx, loan.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, store.Loans().Delete(ctx, loan.ID), circulation.ErrNotFound)
}

func Test_Loans_PersistMicrosecondPrecision(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 1)
	loan := givenLoan(t, item.ID, helper.FixedNow.Add(1234567891*time.Nanosecond), circulation.LoanStateActive)

	require.NoError(t, store.Loans().Save(ctx, loan))

	found, err := store.Loans().Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.LoanDate.Truncate(time.Microsecond).Equal(found.LoanDate))
}

func Test_Loans_Queries(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 5)
	other := helper.GivenItem(t, ctx, store, 5)
	borrower := helper.GivenUniqueID(t)

	older := givenLoan(t, item.ID, helper.FixedNow.Add(-30*24*time.Hour), circulation.LoanStateActive)
	older.BorrowerID = borrower
	newer := givenLoan(t, other.ID, helper.FixedNow.Add(-2*24*time.Hour), circulation.LoanStateOverdue)
	newer.BorrowerID = borrower
	dueNow := givenLoan(t, item.ID, helper.FixedNow.Add(-14*24*time.Hour), circulation.LoanStateActive)

	lateReturn := helper.FixedNow.Add(-time.Hour)
	returnedLate := givenLoan(t, other.ID, helper.FixedNow.Add(-20*24*time.Hour), circulation.LoanStateReturned)
	returnedLate.ReturnDate = &lateReturn

	onTimeReturn := helper.FixedNow.Add(-10 * 24 * time.Hour)
	returnedOnTime := givenLoan(t, other.ID, helper.FixedNow.Add(-11*24*time.Hour), circulation.LoanStateReturned)
	returnedOnTime.BorrowerID = borrower
	returnedOnTime.ReturnDate = &onTimeReturn

	for _, loan := range []circulation.Loan{newer, older, dueNow, returnedLate, returnedOnTime} {
		helper.GivenLoanRow(t, ctx, store, loan)
	}

	// act
	byBorrower, err := store.Loans().FindActiveByBorrower(ctx, borrower)
	require.NoError(t, err)

	overdue, err := store.Loans().FindOverdueAsOf(ctx, helper.FixedNow)
	require.NoError(t, err)

	late, err := store.Loans().Find(ctx, circulation.BuildLoanFilter().ReturnedLate().Finalize())
	require.NoError(t, err)

	limited, err := store.Loans().Find(ctx, circulation.BuildLoanFilter().ForItem(item.ID).Limit(1).Finalize())
	require.NoError(t, err)

	counts, err := store.Loans().CountByState(ctx)
	require.NoError(t, err)

	// assert
	require.Len(t, byBorrower, 2)
	assert.Equal(t, older.ID, byBorrower[0].ID, "ordered by loan date")
	assert.Equal(t, newer.ID, byBorrower[1].ID)

	require.Len(t, overdue, 1, "due exactly now is not overdue yet")
	assert.Equal(t, older.ID, overdue[0].ID)

	require.Len(t, late, 1)
	assert.Equal(t, returnedLate.ID, late[0].ID)

	require.Len(t, limited, 1)
	assert.Equal(t, older.ID, limited[0].ID)

	assert.Equal(t, map[circulation.LoanState]int{
		circulation.LoanStateActive:    2,
		circulation.LoanStateOverdue:   1,
		circulation.LoanStateReturned:  2,
		circulation.LoanStateCancelled: 0,
	}, counts)

	helper.AssertCounterInvariant(t, ctx, store, item.ID)
	helper.AssertCounterInvariant(t, ctx, store, other.ID)
}

func Test_Loans_FindOverdueAsOf_KeepsLoansDueLessThanAMicrosecondAgo(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 1)
	loan := givenLoan(t, item.ID, helper.FixedNow.Add(-14*24*time.Hour), circulation.LoanStateActive)
	loan = helper.GivenLoanRow(t, ctx, store, loan)
	now := loan.DueDate.Add(500 * time.Nanosecond)

	// act
	overdue, err := store.Loans().FindOverdueAsOf(ctx, now)
	require.NoError(t, err)

	notYet, err := store.Loans().FindOverdueAsOf(ctx, loan.DueDate)
	require.NoError(t, err)

	// assert
	assert.True(t, loan.IsOverdue(now))
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.ID, overdue[0].ID)
	assert.Empty(t, notYet)
}

func Test_Loans_RejectSecondOutstandingLoanForSameItemAndBorrower(t *testing.T) {
	ctx := context.Background()
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, ctx, store, 2)
	first := givenLoan(t, item.ID, helper.FixedNow, circulation.LoanStateActive)
	require.NoError(t, store.Loans().Save(ctx, first))

	second := givenLoan(t, item.ID, helper.FixedNow, circulation.LoanStateActive)
	second.BorrowerID = first.BorrowerID

	assert.ErrorIs(t, store.Loans().Save(ctx, second), circulation.ErrSavingFailed)
}

func Test_Reads_UseThePrimaryWithoutReplica(t *testing.T) {
	ctx := circulation.WithEventualConsistency(context.Background())
	store := givenSQLiteStore(t)
	item := helper.GivenItem(t, context.Background(), store, 1)

	found, err := store.Items().Get(ctx, item.ID)

	require.NoError(t, err)
	assert.Equal(t, item, found)
}
