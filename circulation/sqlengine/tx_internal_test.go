package sqlengine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

func Test_OwnLoanLocks_CoverItemAndBorrower(t *testing.T) {
	loan := circulation.Loan{ID: uuid.New(), ItemID: uuid.New(), BorrowerID: uuid.New()}

	keys := ownLoanLocks(loan)

	assert.ElementsMatch(t, []circulation.LockKey{
		circulation.ItemLock(loan.ItemID),
		circulation.BorrowerLock(loan.BorrowerID),
	}, keys)
}

func Test_CeilMicros_RoundsSubMicrosecondRemaindersUp(t *testing.T) {
	aligned := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, toMicros(aligned), ceilMicros(aligned))
	assert.Equal(t, toMicros(aligned)+1, ceilMicros(aligned.Add(1)))
	assert.Equal(t, toMicros(aligned)+1, ceilMicros(aligned.Add(999)))
}
