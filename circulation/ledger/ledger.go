package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	logMsgReserved          = "ledger: copy reserved"
	logMsgReleased          = "ledger: copy released"
	logMsgCapacityAdjusted  = "ledger: capacity adjusted"
	logMsgInvariantViolated = "ledger: invariant violated"
	logAttrItemID           = "item_id"
	logAttrAvailable        = "available_copies"
	logAttrTotal            = "total_copies"
	logAttrError            = "error"
)

// Ledger mutates item counters. The zero value is usable and silent.
type Ledger struct {
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
}

// Option configures a Ledger.
type Option func(*Ledger) error

// WithLogger sets the logger. Debug receives every counter change, Error receives invariant violations.
func WithLogger(logger circulation.Logger) Option {
	return func(l *Ledger) error {
		l.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over the plain logger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(l *Ledger) error {
		l.contextualLogger = logger
		return nil
	}
}

// New creates a Ledger with optional configuration.
func New(options ...Option) (*Ledger, error) {
	l := &Ledger{}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Reserve takes one copy of the item out of stock.
// It fails with ReasonOutOfStock if no copy is available.
func (l *Ledger) Reserve(ctx context.Context, items circulation.ItemStore, itemID uuid.UUID) (circulation.Item, error) {
	item, err := l.load(ctx, items, itemID)
	if err != nil {
		return circulation.Item{}, err
	}

	if !item.HasAvailableCopy() {
		return circulation.Item{}, &circulation.RuleViolationError{
			Reason: circulation.ReasonOutOfStock,
			ItemID: itemID,
			Detail: "no copy available",
		}
	}

	item.AvailableCopies--

	if err = items.Save(ctx, item); err != nil {
		return circulation.Item{}, err
	}

	l.logDebug(ctx, logMsgReserved, logAttrItemID, itemID.String(), logAttrAvailable, item.AvailableCopies)

	return item, nil
}

// Release puts one copy of the item back into stock.
// Releasing an item that has no lent copies is an invariant violation; the counter is left untouched.
func (l *Ledger) Release(ctx context.Context, items circulation.ItemStore, itemID uuid.UUID) (circulation.Item, error) {
	item, err := l.load(ctx, items, itemID)
	if err != nil {
		return circulation.Item{}, err
	}

	if item.AvailableCopies >= item.TotalCopies {
		return circulation.Item{}, l.invariantViolated(ctx, &circulation.InvariantViolationError{
			ItemID: itemID,
			Detail: fmt.Sprintf("release would exceed total copies %d", item.TotalCopies),
		})
	}

	item.AvailableCopies++

	if err = items.Save(ctx, item); err != nil {
		return circulation.Item{}, err
	}

	l.logDebug(ctx, logMsgReleased, logAttrItemID, itemID.String(), logAttrAvailable, item.AvailableCopies)

	return item, nil
}

// AdjustCapacity revises the item's total copies and shifts the available count by the same delta.
// A new total below the number of lent copies fails with ReasonCapacityBelowOutstanding.
func (l *Ledger) AdjustCapacity(
	ctx context.Context,
	items circulation.ItemStore,
	itemID uuid.UUID,
	newTotal int,
) (circulation.Item, error) {

	if newTotal < 1 {
		return circulation.Item{}, &circulation.RuleViolationError{
			Reason: circulation.ReasonInvalidCapacity,
			ItemID: itemID,
			Detail: fmt.Sprintf("total copies %d below 1", newTotal),
		}
	}

	item, err := l.load(ctx, items, itemID)
	if err != nil {
		return circulation.Item{}, err
	}

	available := item.AvailableCopies + (newTotal - item.TotalCopies)
	if available < 0 {
		return circulation.Item{}, &circulation.RuleViolationError{
			Reason: circulation.ReasonCapacityBelowOutstanding,
			ItemID: itemID,
			Detail: fmt.Sprintf("%d copies are lent, cannot shrink to %d", item.LentCopies(), newTotal),
		}
	}

	item.TotalCopies = newTotal
	item.AvailableCopies = available

	if err = items.Save(ctx, item); err != nil {
		return circulation.Item{}, err
	}

	l.logDebug(ctx, logMsgCapacityAdjusted,
		logAttrItemID, itemID.String(),
		logAttrTotal, item.TotalCopies,
		logAttrAvailable, item.AvailableCopies)

	return item, nil
}

// load reads the item and refuses to work on a counter that is already out of bounds.
func (l *Ledger) load(ctx context.Context, items circulation.ItemStore, itemID uuid.UUID) (circulation.Item, error) {
	item, err := items.Get(ctx, itemID)
	if err != nil {
		return circulation.Item{}, err
	}

	if err = item.Validate(); err != nil {
		return circulation.Item{}, l.invariantViolated(ctx, err)
	}

	return item, nil
}

func (l *Ledger) invariantViolated(ctx context.Context, err error) error {
	switch {
	case l.contextualLogger != nil:
		l.contextualLogger.ErrorContext(ctx, logMsgInvariantViolated, logAttrError, err.Error())
	case l.logger != nil:
		l.logger.Error(logMsgInvariantViolated, logAttrError, err.Error())
	}

	return err
}

func (l *Ledger) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case l.contextualLogger != nil:
		l.contextualLogger.DebugContext(ctx, msg, args...)
	case l.logger != nil:
		l.logger.Debug(msg, args...)
	}
}
