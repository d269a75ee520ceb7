package borrowerdirectory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

var _ circulation.BorrowerDirectory = (*Static)(nil)

// Static is an in-memory directory.
type Static struct {
	mu        sync.RWMutex
	borrowers map[uuid.UUID]circulation.Borrower
}

// NewStatic creates a directory holding the given borrowers.
func NewStatic(borrowers ...circulation.Borrower) *Static {
	s := &Static{borrowers: make(map[uuid.UUID]circulation.Borrower, len(borrowers))}
	for _, b := range borrowers {
		s.borrowers[b.ID] = b
	}

	return s
}

func (s *Static) Get(_ context.Context, borrowerID uuid.UUID) (circulation.Borrower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.borrowers[borrowerID]
	if !ok {
		return circulation.Borrower{}, circulation.NewNotFoundError(circulation.EntityBorrower, borrowerID)
	}

	return b, nil
}

// Put adds or replaces a borrower.
func (s *Static) Put(b circulation.Borrower) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.borrowers[b.ID] = b
}
