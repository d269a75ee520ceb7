package circulation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RejectionReason is the machine-readable code of a business rule violation.
type RejectionReason string

const (
	ReasonItemUnavailable          RejectionReason = "item_unavailable"
	ReasonBorrowerIneligible       RejectionReason = "borrower_ineligible"
	ReasonDuplicateLoan            RejectionReason = "duplicate_loan"
	ReasonHasOverdueLoans          RejectionReason = "has_overdue_loans"
	ReasonLoanLimitReached         RejectionReason = "loan_limit_reached"
	ReasonInvalidDueDate           RejectionReason = "invalid_due_date"
	ReasonAlreadyReturned          RejectionReason = "already_returned"
	ReasonInvalidState             RejectionReason = "invalid_state"
	ReasonCapacityBelowOutstanding RejectionReason = "capacity_below_outstanding"
	ReasonInvalidCapacity          RejectionReason = "invalid_capacity"
	ReasonOutOfStock               RejectionReason = "out_of_stock"
)

func (r RejectionReason) String() string {
	return string(r)
}

// Entity names used in NotFoundError.
const (
	EntityItem     = "item"
	EntityLoan     = "loan"
	EntityBorrower = "borrower"
)

// NotFoundError reports an absent Item, Loan or Borrower.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

// NewNotFoundError creates a NotFoundError for the given entity and ID.
func NewNotFoundError(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RuleViolationError reports a rejected operation. Zero-valued IDs were not relevant for the rejection.
type RuleViolationError struct {
	Reason     RejectionReason
	ItemID     uuid.UUID
	LoanID     uuid.UUID
	BorrowerID uuid.UUID
	Detail     string
}

func (e *RuleViolationError) Error() string {
	msg := "rejected: " + e.Reason.String()

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.LoanID != uuid.Nil {
		msg += " [loan " + e.LoanID.String() + "]"
	}

	if e.ItemID != uuid.Nil {
		msg += " [item " + e.ItemID.String() + "]"
	}

	if e.BorrowerID != uuid.Nil {
		msg += " [borrower " + e.BorrowerID.String() + "]"
	}

	return msg
}

func (e *RuleViolationError) Unwrap() error {
	return ErrBusinessRuleViolation
}

// InvariantViolationError reports a detected inconsistency between an item's counter and its loans.
// It indicates a bug or out-of-band data corruption and is never corrected automatically.
type InvariantViolationError struct {
	ItemID uuid.UUID
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated for item %s: %s", e.ItemID, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// ReasonOf returns the RejectionReason carried by err, or "" if err is not a rule violation.
func ReasonOf(err error) RejectionReason {
	var violation *RuleViolationError
	if errors.As(err, &violation) {
		return violation.Reason
	}

	return ""
}

// IsRejectedWith reports whether err is a rule violation with the given reason.
func IsRejectedWith(err error, reason RejectionReason) bool {
	return err != nil && ReasonOf(err) == reason
}
