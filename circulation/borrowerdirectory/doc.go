// Package borrowerdirectory provides circulation.BorrowerDirectory implementations.
//
// Borrower records are owned by an external member service; the engine only reads the active
// flag and the display name. Static serves a fixed in-process set (tests, embedded use), Redis
// reads JSON records written by the member service.
package borrowerdirectory
