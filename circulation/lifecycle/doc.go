// Package lifecycle drives loans through their states and keeps every item's counter consistent.
//
// Each mutating Controller operation is one transaction on the circulation.Store:
//
//	Begin(item lock, borrower lock) -> read snapshot -> policy decision -> ledger change -> loan write -> Commit
//
// If any step fails, the transaction is rolled back. Rollback discards the staged ledger change
// together with the staged loan write, which is the compensating action: a counter change never
// becomes visible without its loan row. The original error is returned unchanged; the
// Controller never retries, retry is a caller concern.
//
// The overdue sweep runs one small transaction per loan and never touches the ledger. A Sweeper
// runs it periodically.
package lifecycle
