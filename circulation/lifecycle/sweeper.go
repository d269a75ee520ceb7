package lifecycle

import (
	"context"
	"errors"
	"time"
)

const defaultSweepRunTimeout = time.Minute

// Sweeper runs the overdue sweep on a fixed interval.
type Sweeper struct {
	controller *Controller
	interval   time.Duration
	runTimeout time.Duration
	onRun      func(transitioned int, err error)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper) error

// WithRunTimeout bounds a single sweep. Loans not reached in time are caught by the next run.
func WithRunTimeout(timeout time.Duration) SweeperOption {
	return func(s *Sweeper) error {
		if timeout <= 0 {
			return errors.New("sweep run timeout must be positive")
		}

		s.runTimeout = timeout

		return nil
	}
}

// WithRunHook is called after every sweep run.
func WithRunHook(hook func(transitioned int, err error)) SweeperOption {
	return func(s *Sweeper) error {
		s.onRun = hook
		return nil
	}
}

// NewSweeper creates a Sweeper for the controller.
func NewSweeper(controller *Controller, interval time.Duration, options ...SweeperOption) (*Sweeper, error) {
	if controller == nil {
		return nil, errors.New("controller must not be nil")
	}

	if interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}

	s := &Sweeper{
		controller: controller,
		interval:   interval,
		runTimeout: defaultSweepRunTimeout,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Failed runs are reported through the controller's instrumentation and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	transitioned, err := s.controller.SweepOverdue(runCtx, s.controller.now())

	if s.onRun != nil {
		s.onRun(transitioned, err)
	}
}
