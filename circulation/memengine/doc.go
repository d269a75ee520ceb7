// Package memengine is an in-process implementation of circulation.Store.
//
// Mutual exclusion uses one semaphore per lock key. A transaction acquires its keys in sorted
// order, stages every write in its own buffer (reads see the transaction's own writes), and
// applies the buffer under the store mutex on Commit. Rollback drops the buffer, so a failed
// operation never leaves a counter change without its loan row or vice versa.
//
// Writes are only accepted inside the lock scope: saving an item or a loan requires the
// transaction to hold the item's lock.
package memengine
