package main

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/lifecycle"
)

type itemView struct {
	ID              string `json:"id"`
	TotalCopies     int    `json:"totalCopies"`
	AvailableCopies int    `json:"availableCopies"`
	LentCopies      int    `json:"lentCopies"`
}

type loanView struct {
	ID         string     `json:"id"`
	ItemID     string     `json:"itemId"`
	BorrowerID string     `json:"borrowerId"`
	LoanDate   time.Time  `json:"loanDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	State      string     `json:"state"`
	Notes      string     `json:"notes,omitempty"`
}

type loanStatusView struct {
	Loan     loanView `json:"loan"`
	Overdue  bool     `json:"overdue"`
	DaysLate int      `json:"daysLate"`
}

type receiptView struct {
	Loan     loanView `json:"loan"`
	Item     itemView `json:"item"`
	Late     bool     `json:"late"`
	DaysLate int      `json:"daysLate"`
}

type sweepView struct {
	AsOf         time.Time `json:"asOf"`
	Transitioned int       `json:"transitioned"`
}

type errorView struct {
	Error    string `json:"error"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
	LoanID   string `json:"loanId,omitempty"`
	Borrower string `json:"borrowerId,omitempty"`
}

func toItemView(item circulation.Item) itemView {
	return itemView{
		ID:              item.ID.String(),
		TotalCopies:     item.TotalCopies,
		AvailableCopies: item.AvailableCopies,
		LentCopies:      item.LentCopies(),
	}
}

func toLoanView(loan circulation.Loan) loanView {
	return loanView{
		ID:         loan.ID.String(),
		ItemID:     loan.ItemID.String(),
		BorrowerID: loan.BorrowerID.String(),
		LoanDate:   loan.LoanDate,
		DueDate:    loan.DueDate,
		ReturnDate: loan.ReturnDate,
		State:      loan.State.String(),
		Notes:      loan.Notes,
	}
}

func toLoanViews(loans []circulation.Loan) []loanView {
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, toLoanView(loan))
	}

	return views
}

func toReceiptView(receipt lifecycle.ReturnReceipt) receiptView {
	return receiptView{
		Loan:     toLoanView(receipt.Loan),
		Item:     toItemView(receipt.Item),
		Late:     receipt.Late,
		DaysLate: receipt.DaysLate,
	}
}

func toErrorView(err error) errorView {
	view := errorView{Error: err.Error(), Status: lifecycle.StatusOf(err)}

	var violation *circulation.RuleViolationError
	if errors.As(err, &violation) {
		view.Reason = violation.Reason.String()
		view.ItemID = optionalID(violation.ItemID)
		view.LoanID = optionalID(violation.LoanID)
		view.Borrower = optionalID(violation.BorrowerID)
	}

	return view
}

func optionalID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}

	return id.String()
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
