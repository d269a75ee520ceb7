package sqlengine

import (
	"context"
	"fmt"
)

const ddlItems = `CREATE TABLE IF NOT EXISTS %[1]s (
	id               TEXT PRIMARY KEY,
	total_copies     INTEGER NOT NULL CHECK (total_copies >= 1),
	available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies)
)`

const ddlLoans = `CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	item_id     TEXT NOT NULL REFERENCES %[2]s (id),
	borrower_id TEXT NOT NULL,
	loan_date   BIGINT NOT NULL,
	due_date    BIGINT NOT NULL,
	return_date BIGINT,
	state       TEXT NOT NULL,
	notes       TEXT NOT NULL DEFAULT ''
)`

// one outstanding loan per item and borrower
const ddlLoansOutstandingUnique = `CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_outstanding_uidx
	ON %[1]s (item_id, borrower_id) WHERE state IN ('ACTIVE', 'OVERDUE')`

const ddlLoansBorrowerIndex = `CREATE INDEX IF NOT EXISTS %[1]s_borrower_state_idx ON %[1]s (borrower_id, state)`

const ddlLoansDueIndex = `CREATE INDEX IF NOT EXISTS %[1]s_state_due_idx ON %[1]s (state, due_date)`

const ddlLoansItemIndex = `CREATE INDEX IF NOT EXISTS %[1]s_item_idx ON %[1]s (item_id)`

// Schema returns the DDL statements creating the store's tables and indexes.
func (s *Store) Schema() []string {
	return []string{
		fmt.Sprintf(ddlItems, s.itemsTable),
		fmt.Sprintf(ddlLoans, s.loansTable, s.itemsTable),
		fmt.Sprintf(ddlLoansOutstandingUnique, s.loansTable),
		fmt.Sprintf(ddlLoansBorrowerIndex, s.loansTable),
		fmt.Sprintf(ddlLoansDueIndex, s.loansTable),
		fmt.Sprintf(ddlLoansItemIndex, s.loansTable),
	}
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, statement := range s.Schema() {
		if _, err := s.exec(ctx, s.db, logActionMigrate, statement, nil); err != nil {
			return err
		}
	}

	return nil
}
