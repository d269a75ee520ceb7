package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Borrower is the part of a member record the engine reads.
// Borrowers are owned by an external directory.
type Borrower struct {
	ID          uuid.UUID `json:"id"`
	Active      bool      `json:"active"`
	DisplayName string    `json:"displayName,omitempty"`
}

// BorrowerDirectory resolves borrowers. An absent borrower is reported as a *NotFoundError.
type BorrowerDirectory interface {
	Get(ctx context.Context, borrowerID uuid.UUID) (Borrower, error)
}
