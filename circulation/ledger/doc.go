// Package ledger is the single writer of an Item's available-copies counter.
//
// Every operation reads the item, checks its precondition and writes it back through the
// ItemStore of an open transaction. The transaction's lock on the item turns this into one
// atomic read-modify-write: two reserves racing for the last copy serialize on the lock and
// the second one fails with ReasonOutOfStock.
package ledger
