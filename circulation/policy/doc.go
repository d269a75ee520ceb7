// Package policy holds the pure loan decisions: borrow, return, cancel and the overdue transition.
//
// Decide functions take snapshots and return a Decision. They never perform I/O, so the caller
// must gather the snapshot inside the same transaction that acts on the decision.
package policy
