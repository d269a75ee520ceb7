package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/ledger"
)

// Controller orchestrates create, return, cancel and the overdue sweep.
// It is safe for concurrent use; concurrency control is delegated to the Store's lock keys.
type Controller struct {
	store            circulation.Store
	borrowers        circulation.BorrowerDirectory
	ledger           *ledger.Ledger
	now              func() time.Time
	newID            func() (uuid.UUID, error)
	purgeOnCancel    bool
	sweepLimiter     *rate.Limiter
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// Option configures a Controller.
type Option func(*Controller) error

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}

		c.now = now

		return nil
	}
}

// WithIDGenerator replaces uuid.NewV7 for new loan IDs.
func WithIDGenerator(newID func() (uuid.UUID, error)) Option {
	return func(c *Controller) error {
		if newID == nil {
			return errors.New("id generator must not be nil")
		}

		c.newID = newID

		return nil
	}
}

// WithLedger replaces the default silent ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Controller) error {
		if l == nil {
			return errors.New("ledger must not be nil")
		}

		c.ledger = l

		return nil
	}
}

// WithPurgeOnCancel makes CancelLoan delete the loan row instead of keeping it as CANCELLED.
func WithPurgeOnCancel() Option {
	return func(c *Controller) error {
		c.purgeOnCancel = true
		return nil
	}
}

// WithSweepLimiter throttles the overdue sweep to the limiter's rate of loan transitions.
func WithSweepLimiter(limiter *rate.Limiter) Option {
	return func(c *Controller) error {
		c.sweepLimiter = limiter
		return nil
	}
}

// WithLogger sets the logger for operation start, completion, rejection and failure.
func WithLogger(logger circulation.Logger) Option {
	return func(c *Controller) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over the plain logger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(c *Controller) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for operation durations, calls, rejections and sweep results.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(c *Controller) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Every operation gets one span.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(c *Controller) error {
		c.tracingCollector = collector
		return nil
	}
}

// NewController creates a Controller with optional configuration.
func NewController(store circulation.Store, borrowers circulation.BorrowerDirectory, options ...Option) (*Controller, error) {
	if store == nil {
		return nil, circulation.ErrNilStore
	}

	if borrowers == nil {
		return nil, circulation.ErrNilBorrowerDirectory
	}

	c := &Controller{
		store:     store,
		borrowers: borrowers,
		now:       time.Now,
		newID:     uuid.NewV7,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	if c.ledger == nil {
		l, err := ledger.New(ledger.WithLogger(c.logger), ledger.WithContextualLogger(c.contextualLogger))
		if err != nil {
			return nil, err
		}

		c.ledger = l
	}

	return c, nil
}

// inTx runs fn in a transaction holding locks. Commit on success, rollback on any failure.
// The rollback runs even if ctx is already done, so locks and connections are always freed.
func (c *Controller) inTx(ctx context.Context, locks []circulation.LockKey, fn func(tx circulation.Tx) error) error {
	tx, err := c.store.Begin(ctx, locks...)
	if err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			return errors.Join(err, circulation.ErrRollbackFailed, rollbackErr)
		}

		return err
	}

	return tx.Commit(ctx)
}

func loanLocks(itemID, borrowerID uuid.UUID) []circulation.LockKey {
	return []circulation.LockKey{circulation.ItemLock(itemID), circulation.BorrowerLock(borrowerID)}
}
