// Package circulation provides the core types and contracts of the loan/inventory consistency engine.
//
// The engine tracks circulating copies of lendable items. For every item it keeps the number of
// available copies consistent with the set of outstanding loans:
//
//	AvailableCopies == TotalCopies - count(loans of the item in ACTIVE or OVERDUE)
//
// This package defines:
//   - Item, Loan and Borrower records plus the LoanState machine
//   - the storage contracts (Store, Tx, ItemStore, LoanStore) and the BorrowerDirectory
//   - typed errors carrying a RejectionReason for business rule violations
//   - LoanFilter for list queries
//   - the dependency-free observability interfaces (Logger, MetricsCollector, TracingCollector)
//
// The mutating logic lives in the subpackages:
//   - ledger: the only writer of an item's available-copies counter
//   - policy: pure borrow/return/cancel/overdue decisions
//   - lifecycle: the Controller that runs each operation as one transaction
//
// Storage engines: memengine (in-process) and sqlengine (PostgreSQL, SQLite).
//
// Common usage pattern:
//
//	store := memengine.NewStore()
//	controller, err := lifecycle.NewController(store, borrowers)
//	if err != nil {
//		// handle error
//	}
//
//	loan, err := controller.CreateLoan(ctx, lifecycle.BorrowRequest{ItemID: itemID, BorrowerID: borrowerID})
//	if circulation.IsRejectedWith(err, circulation.ReasonItemUnavailable) {
//		// no copy left
//	}
package circulation
