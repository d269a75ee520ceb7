package memengine

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	defaultLockTimeout   = 5 * time.Second
	logMsgTxCommitted    = "memengine: transaction committed"
	logMsgTxRolledBack   = "memengine: transaction rolled back"
	logMsgLockWaitFailed = "memengine: acquiring locks failed"
	logAttrLocks         = "locks"
	logAttrItemWrites    = "item_writes"
	logAttrLoanWrites    = "loan_writes"
	logAttrError         = "error"
)

var _ circulation.Store = (*Store)(nil)

// Store keeps items and loans in maps guarded by a RWMutex. Committed state is only replaced
// wholesale per transaction, so readers never observe half of a commit.
type Store struct {
	mu          sync.RWMutex
	items       map[uuid.UUID]circulation.Item
	loans       map[uuid.UUID]circulation.Loan
	locks       *lockTable
	lockTimeout time.Duration
	logger      circulation.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger. Debug receives commits and rollbacks, Warn receives lock wait failures.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithLockTimeout bounds how long Begin waits for its locks when ctx carries no earlier deadline.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout <= 0 {
			return errors.New("lock timeout must be positive")
		}

		s.lockTimeout = timeout

		return nil
	}
}

// NewStore creates an empty Store with optional configuration.
func NewStore(options ...Option) (*Store, error) {
	s := &Store{
		items:       make(map[uuid.UUID]circulation.Item),
		loans:       make(map[uuid.UUID]circulation.Loan),
		locks:       newLockTable(),
		lockTimeout: defaultLockTimeout,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Begin opens a transaction holding all the given lock keys.
func (s *Store) Begin(ctx context.Context, locks ...circulation.LockKey) (circulation.Tx, error) {
	return s.begin(ctx, locks)
}

func (s *Store) begin(ctx context.Context, locks []circulation.LockKey) (*tx, error) {
	keys := circulation.SortedLockKeys(locks)

	waitCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	if err := s.locks.acquireAll(waitCtx, keys); err != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgLockWaitFailed, logAttrLocks, len(keys), logAttrError, err.Error())
		}

		return nil, errors.Join(circulation.ErrAcquiringLockFailed, err)
	}

	held := make(map[circulation.LockKey]struct{}, len(keys))
	for _, key := range keys {
		held[key] = struct{}{}
	}

	return &tx{
		store:       s,
		keys:        keys,
		held:        held,
		stagedItems: make(map[uuid.UUID]circulation.Item),
		stagedLoans: make(map[uuid.UUID]stagedLoan),
	}, nil
}

// Items returns an ItemStore outside any transaction. Each Save runs in its own transaction.
func (s *Store) Items() circulation.ItemStore {
	return storeItems{store: s}
}

// Loans returns a LoanStore outside any transaction. Each Save or Delete runs in its own transaction.
func (s *Store) Loans() circulation.LoanStore {
	return storeLoans{
		loanQueries: loanQueries{get: s.getLoan, all: s.snapshotLoans},
		store:       s,
	}
}

func (s *Store) getItem(itemID uuid.UUID) (circulation.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]

	return item, ok
}

func (s *Store) getLoan(loanID uuid.UUID) (circulation.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[loanID]

	return loan, ok
}

func (s *Store) snapshotLoans() map[uuid.UUID]circulation.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.loans)
}

func (s *Store) apply(items map[uuid.UUID]circulation.Item, loans map[uuid.UUID]stagedLoan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range items {
		s.items[id] = item
	}

	for id, staged := range loans {
		if staged.deleted {
			delete(s.loans, id)
			continue
		}

		s.loans[id] = staged.loan
	}
}

/***** non-transactional views *****/

type storeItems struct {
	store *Store
}

func (v storeItems) Get(_ context.Context, itemID uuid.UUID) (circulation.Item, error) {
	item, ok := v.store.getItem(itemID)
	if !ok {
		return circulation.Item{}, circulation.NewNotFoundError(circulation.EntityItem, itemID)
	}

	return item, nil
}

func (v storeItems) Exists(_ context.Context, itemID uuid.UUID) (bool, error) {
	_, ok := v.store.getItem(itemID)
	return ok, nil
}

func (v storeItems) Save(ctx context.Context, item circulation.Item) error {
	t, err := v.store.begin(ctx, []circulation.LockKey{circulation.ItemLock(item.ID)})
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback(ctx) }()

	if err = t.Items().Save(ctx, item); err != nil {
		return err
	}

	return t.Commit(ctx)
}

type storeLoans struct {
	loanQueries
	store *Store
}

func (v storeLoans) Save(ctx context.Context, loan circulation.Loan) error {
	t, err := v.store.begin(ctx, []circulation.LockKey{circulation.ItemLock(loan.ItemID), circulation.BorrowerLock(loan.BorrowerID)})
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback(ctx) }()

	if err = t.Loans().Save(ctx, loan); err != nil {
		return err
	}

	return t.Commit(ctx)
}

func (v storeLoans) Delete(ctx context.Context, loanID uuid.UUID) error {
	loan, ok := v.store.getLoan(loanID)
	if !ok {
		return circulation.NewNotFoundError(circulation.EntityLoan, loanID)
	}

	t, err := v.store.begin(ctx, []circulation.LockKey{circulation.ItemLock(loan.ItemID), circulation.BorrowerLock(loan.BorrowerID)})
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback(ctx) }()

	if err = t.Loans().Delete(ctx, loanID); err != nil {
		return err
	}

	return t.Commit(ctx)
}
