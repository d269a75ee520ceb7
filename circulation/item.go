package circulation

import (
	"fmt"

	"github.com/google/uuid"
)

// Item is a lendable title with a fixed number of physical copies.
//
// AvailableCopies is only changed through the ledger package.
type Item struct {
	ID              uuid.UUID
	TotalCopies     int
	AvailableCopies int
}

// NewItem creates an Item with all copies available.
func NewItem(id uuid.UUID, totalCopies int) (Item, error) {
	if totalCopies < 1 {
		return Item{}, ErrInvalidCapacitySupplied
	}

	return Item{
		ID:              id,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}, nil
}

// LentCopies is the number of copies currently out on ACTIVE or OVERDUE loans.
func (i Item) LentCopies() int {
	return i.TotalCopies - i.AvailableCopies
}

// HasAvailableCopy reports whether at least one copy can be lent.
func (i Item) HasAvailableCopy() bool {
	return i.AvailableCopies > 0
}

// Validate checks the counter bounds: TotalCopies >= 1 and 0 <= AvailableCopies <= TotalCopies.
func (i Item) Validate() error {
	if i.TotalCopies < 1 {
		return &InvariantViolationError{
			ItemID: i.ID,
			Detail: fmt.Sprintf("total copies %d below 1", i.TotalCopies),
		}
	}

	if i.AvailableCopies < 0 || i.AvailableCopies > i.TotalCopies {
		return &InvariantViolationError{
			ItemID: i.ID,
			Detail: fmt.Sprintf("available copies %d outside 0..%d", i.AvailableCopies, i.TotalCopies),
		}
	}

	return nil
}

// CheckOutstanding verifies the counter against the number of outstanding loans of the item.
func (i Item) CheckOutstanding(outstandingLoans int) error {
	if err := i.Validate(); err != nil {
		return err
	}

	if i.LentCopies() != outstandingLoans {
		return &InvariantViolationError{
			ItemID: i.ID,
			Detail: fmt.Sprintf("%d copies lent but %d outstanding loans", i.LentCopies(), outstandingLoans),
		}
	}

	return nil
}
