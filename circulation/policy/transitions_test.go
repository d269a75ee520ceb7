package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/policy"
)

func Test_DecideReturn(t *testing.T) {
	tests := []struct {
		state    circulation.LoanState
		approved bool
		reason   circulation.RejectionReason
	}{
		{state: circulation.LoanStateActive, approved: true},
		{state: circulation.LoanStateOverdue, approved: true},
		{state: circulation.LoanStateReturned, reason: circulation.ReasonAlreadyReturned},
		{state: circulation.LoanStateCancelled, reason: circulation.ReasonInvalidState},
	}

	for _, tc := range tests {
		t.Run(tc.state.String(), func(t *testing.T) {
			decision := policy.DecideReturn(givenOutstandingLoan(tc.state, now))

			if tc.approved {
				assert.True(t, decision.Approved())
				return
			}

			assertRejected(t, decision, tc.reason)
		})
	}
}

func Test_DecideCancel(t *testing.T) {
	tests := []struct {
		state    circulation.LoanState
		approved bool
	}{
		{state: circulation.LoanStateActive, approved: true},
		{state: circulation.LoanStateOverdue},
		{state: circulation.LoanStateReturned},
		{state: circulation.LoanStateCancelled},
	}

	for _, tc := range tests {
		t.Run(tc.state.String(), func(t *testing.T) {
			decision := policy.DecideCancel(givenOutstandingLoan(tc.state, now))

			if tc.approved {
				assert.True(t, decision.Approved())
				return
			}

			assertRejected(t, decision, circulation.ReasonInvalidState)
		})
	}
}

func Test_DecideOverdueTransition(t *testing.T) {
	tests := []struct {
		name     string
		loan     circulation.Loan
		approved bool
	}{
		{name: "active_past_due", loan: givenOutstandingLoan(circulation.LoanStateActive, now.Add(-24*time.Hour)), approved: true},
		{name: "active_due_now", loan: givenOutstandingLoan(circulation.LoanStateActive, now)},
		{name: "active_not_due", loan: givenOutstandingLoan(circulation.LoanStateActive, now.Add(time.Hour))},
		{name: "already_overdue", loan: givenOutstandingLoan(circulation.LoanStateOverdue, now.Add(-24*time.Hour))},
		{name: "returned", loan: givenOutstandingLoan(circulation.LoanStateReturned, now.Add(-24*time.Hour))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := policy.DecideOverdueTransition(tc.loan, now)

			assert.Equal(t, tc.approved, decision.Approved())
			assert.Equal(t, !tc.approved, decision.Idempotent())
			assert.NoError(t, decision.Err())
		})
	}
}
