package policy

import (
	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	approvedOutcome = "approved"
	noChangeOutcome = "no_change"
	rejectedOutcome = "rejected"
)

// Decision is the outcome of a Decide function.
//
// Construct it only with Approve, NoChange or Reject.
type Decision struct {
	outcome   string
	violation *circulation.RuleViolationError
}

// Approve creates a Decision allowing the requested transition.
func Approve() Decision {
	return Decision{outcome: approvedOutcome}
}

// NoChange creates a Decision telling the caller that the state already is what was asked for.
func NoChange() Decision {
	return Decision{outcome: noChangeOutcome}
}

// Reject creates a Decision carrying the violated rule.
func Reject(violation *circulation.RuleViolationError) Decision {
	return Decision{outcome: rejectedOutcome, violation: violation}
}

func (d Decision) Approved() bool {
	return d.outcome == approvedOutcome
}

func (d Decision) Idempotent() bool {
	return d.outcome == noChangeOutcome
}

// Err returns the rule violation of a rejected Decision, otherwise nil.
func (d Decision) Err() error {
	if d.outcome != rejectedOutcome || d.violation == nil {
		return nil
	}

	return d.violation
}

// Reason returns the rejection reason, or "" if the Decision is not a rejection.
func (d Decision) Reason() circulation.RejectionReason {
	if d.violation == nil {
		return ""
	}

	return d.violation.Reason
}

func (d Decision) String() string {
	if d.outcome == rejectedOutcome {
		return d.outcome + ":" + d.Reason().String()
	}

	return d.outcome
}
