package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	colID              = "id"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colItemID          = "item_id"
	colBorrowerID      = "borrower_id"
	colLoanDate        = "loan_date"
	colDueDate         = "due_date"
	colReturnDate      = "return_date"
	colState           = "state"
	colNotes           = "notes"
	aliasCount         = "n"
)

var loanColumns = []any{colID, colItemID, colBorrowerID, colLoanDate, colDueDate, colReturnDate, colState, colNotes}

/***** items *****/

func (s *Store) getItem(ctx context.Context, ex executor, itemID uuid.UUID, forUpdate bool) (circulation.Item, error) {
	ds := s.dialect.
		From(s.itemsTable).
		Select(colID, colTotalCopies, colAvailableCopies).
		Where(goqu.C(colID).Eq(itemID.String())).
		Prepared(true)

	if forUpdate && s.advisory {
		ds = ds.ForUpdate(exp.Wait)
	}

	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		return circulation.Item{}, s.buildFailed(err)
	}

	rows, err := s.query(ctx, ex, logActionSelectItem, sqlQuery, args)
	if err != nil {
		return circulation.Item{}, err
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return circulation.Item{}, errors.Join(circulation.ErrQueryingFailed, err)
		}

		return circulation.Item{}, circulation.NewNotFoundError(circulation.EntityItem, itemID)
	}

	var (
		rawID string
		item  circulation.Item
	)

	if err = rows.Scan(&rawID, &item.TotalCopies, &item.AvailableCopies); err != nil {
		return circulation.Item{}, s.scanFailed(err)
	}

	if item.ID, err = uuid.Parse(rawID); err != nil {
		return circulation.Item{}, errors.Join(circulation.ErrDecodingRecordFailed, err)
	}

	return item, nil
}

func (s *Store) itemExists(ctx context.Context, ex executor, itemID uuid.UUID) (bool, error) {
	_, err := s.getItem(ctx, ex, itemID, false)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, circulation.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// saveItem updates the row and inserts it if nothing was updated. The caller holds the item lock.
func (s *Store) saveItem(ctx context.Context, ex executor, item circulation.Item) error {
	record := goqu.Record{colTotalCopies: item.TotalCopies, colAvailableCopies: item.AvailableCopies}

	updateSQL, updateArgs, err := s.dialect.
		Update(s.itemsTable).
		Set(record).
		Where(goqu.C(colID).Eq(item.ID.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return s.buildFailed(err)
	}

	affected, err := s.exec(ctx, ex, logActionSaveItem, updateSQL, updateArgs)
	if err != nil || affected > 0 {
		return err
	}

	record[colID] = item.ID.String()

	insertSQL, insertArgs, err := s.dialect.Insert(s.itemsTable).Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return s.buildFailed(err)
	}

	_, err = s.exec(ctx, ex, logActionSaveItem, insertSQL, insertArgs)

	return err
}

/***** loans *****/

func (s *Store) selectLoans(ctx context.Context, ex executor, where []exp.Expression, limit int) ([]circulation.Loan, error) {
	ds := s.dialect.
		From(s.loansTable).
		Select(loanColumns...).
		Where(where...).
		Order(goqu.C(colLoanDate).Asc(), goqu.C(colID).Asc()).
		Prepared(true)

	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		return nil, s.buildFailed(err)
	}

	rows, err := s.query(ctx, ex, logActionSelectLoans, sqlQuery, args)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	loans := make([]circulation.Loan, 0)

	for rows.Next() {
		loan, scanErr := s.scanLoan(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		loans = append(loans, loan)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Join(circulation.ErrQueryingFailed, err)
	}

	return loans, nil
}

type scanner interface {
	Scan(dest ...any) error
}

type loanRow struct {
	id, itemID, borrowerID string
	loanDate, dueDate      int64
	returnDate             sql.NullInt64
	state, notes           string
}

func (s *Store) scanLoan(rows scanner) (circulation.Loan, error) {
	var r loanRow

	if err := rows.Scan(&r.id, &r.itemID, &r.borrowerID, &r.loanDate, &r.dueDate, &r.returnDate, &r.state, &r.notes); err != nil {
		return circulation.Loan{}, s.scanFailed(err)
	}

	loan, err := r.toLoan()
	if err != nil {
		return circulation.Loan{}, errors.Join(circulation.ErrDecodingRecordFailed, err)
	}

	return loan, nil
}

func (r loanRow) toLoan() (circulation.Loan, error) {
	var (
		loan circulation.Loan
		err  error
	)

	if loan.ID, err = uuid.Parse(r.id); err != nil {
		return loan, err
	}

	if loan.ItemID, err = uuid.Parse(r.itemID); err != nil {
		return loan, err
	}

	if loan.BorrowerID, err = uuid.Parse(r.borrowerID); err != nil {
		return loan, err
	}

	if loan.State, err = circulation.ParseLoanState(r.state); err != nil {
		return loan, err
	}

	loan.LoanDate = fromMicros(r.loanDate)
	loan.DueDate = fromMicros(r.dueDate)
	loan.Notes = r.notes

	if r.returnDate.Valid {
		returned := fromMicros(r.returnDate.Int64)
		loan.ReturnDate = &returned
	}

	return loan, nil
}

// saveLoan updates the row and inserts it if nothing was updated. The caller holds the item lock.
func (s *Store) saveLoan(ctx context.Context, ex executor, loan circulation.Loan) error {
	var returnDate any
	if loan.ReturnDate != nil {
		returnDate = toMicros(*loan.ReturnDate)
	}

	record := goqu.Record{
		colItemID:     loan.ItemID.String(),
		colBorrowerID: loan.BorrowerID.String(),
		colLoanDate:   toMicros(loan.LoanDate),
		colDueDate:    toMicros(loan.DueDate),
		colReturnDate: returnDate,
		colState:      loan.State.String(),
		colNotes:      loan.Notes,
	}

	updateSQL, updateArgs, err := s.dialect.
		Update(s.loansTable).
		Set(record).
		Where(goqu.C(colID).Eq(loan.ID.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return s.buildFailed(err)
	}

	affected, err := s.exec(ctx, ex, logActionSaveLoan, updateSQL, updateArgs)
	if err != nil || affected > 0 {
		return err
	}

	record[colID] = loan.ID.String()

	insertSQL, insertArgs, err := s.dialect.Insert(s.loansTable).Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return s.buildFailed(err)
	}

	_, err = s.exec(ctx, ex, logActionSaveLoan, insertSQL, insertArgs)

	return err
}

func (s *Store) deleteLoan(ctx context.Context, ex executor, loanID uuid.UUID) error {
	sqlQuery, args, err := s.dialect.
		Delete(s.loansTable).
		Where(goqu.C(colID).Eq(loanID.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return s.buildFailed(err)
	}

	affected, err := s.exec(ctx, ex, logActionDeleteLoan, sqlQuery, args)
	if err != nil {
		return err
	}

	if affected == 0 {
		return circulation.NewNotFoundError(circulation.EntityLoan, loanID)
	}

	return nil
}

func filterExpressions(filter circulation.LoanFilter) []exp.Expression {
	where := make([]exp.Expression, 0, 5)

	if borrowerID, ok := filter.BorrowerID(); ok {
		where = append(where, goqu.C(colBorrowerID).Eq(borrowerID.String()))
	}

	if itemID, ok := filter.ItemID(); ok {
		where = append(where, goqu.C(colItemID).Eq(itemID.String()))
	}

	if states := filter.States(); len(states) > 0 {
		where = append(where, goqu.C(colState).In(stateStrings(states)))
	}

	if dueBefore, ok := filter.DueBefore(); ok {
		where = append(where, goqu.C(colDueDate).Lt(ceilMicros(dueBefore)))
	}

	if filter.ReturnedLate() {
		where = append(where,
			goqu.C(colState).Eq(circulation.LoanStateReturned.String()),
			goqu.C(colReturnDate).Gt(goqu.I(colDueDate)),
		)
	}

	return where
}

func stateStrings(states []circulation.LoanState) []string {
	out := make([]string, len(states))
	for i, state := range states {
		out[i] = state.String()
	}

	return out
}

// loanQueries implements the read side of circulation.LoanStore on one executor.
type loanQueries struct {
	store *Store
	ex    executor
}

func (q loanQueries) Get(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	loans, err := q.store.selectLoans(ctx, q.ex, []exp.Expression{goqu.C(colID).Eq(loanID.String())}, 1)
	if err != nil {
		return circulation.Loan{}, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, circulation.NewNotFoundError(circulation.EntityLoan, loanID)
	}

	return loans[0], nil
}

func (q loanQueries) FindActiveByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]circulation.Loan, error) {
	return q.Find(ctx, circulation.BuildLoanFilter().ForBorrower(borrowerID).Outstanding().Finalize())
}

func (q loanQueries) FindOverdueAsOf(ctx context.Context, date time.Time) ([]circulation.Loan, error) {
	return q.Find(ctx, circulation.BuildLoanFilter().InStates(circulation.LoanStateActive).DueBefore(date).Finalize())
}

func (q loanQueries) Find(ctx context.Context, filter circulation.LoanFilter) ([]circulation.Loan, error) {
	return q.store.selectLoans(ctx, q.ex, filterExpressions(filter), filter.Limit())
}

func (q loanQueries) CountByState(ctx context.Context) (map[circulation.LoanState]int, error) {
	sqlQuery, args, err := q.store.dialect.
		From(q.store.loansTable).
		Select(goqu.C(colState), goqu.COUNT(goqu.Star()).As(aliasCount)).
		GroupBy(goqu.C(colState)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, q.store.buildFailed(err)
	}

	rows, err := q.store.query(ctx, q.ex, logActionCountLoans, sqlQuery, args)
	if err != nil {
		return nil, err
	}
	defer q.store.closeRows(rows)

	counts := make(map[circulation.LoanState]int, len(circulation.AllLoanStates()))
	for _, state := range circulation.AllLoanStates() {
		counts[state] = 0
	}

	for rows.Next() {
		var (
			rawState string
			n        int64
		)

		if err = rows.Scan(&rawState, &n); err != nil {
			return nil, q.store.scanFailed(err)
		}

		state, parseErr := circulation.ParseLoanState(rawState)
		if parseErr != nil {
			return nil, errors.Join(circulation.ErrDecodingRecordFailed, parseErr)
		}

		counts[state] = int(n)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Join(circulation.ErrQueryingFailed, err)
	}

	return counts, nil
}
