package main

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

// uuidFlag is a flag.Value holding a required UUID.
type uuidFlag struct {
	id  uuid.UUID
	set bool
}

func (f *uuidFlag) String() string {
	if !f.set {
		return ""
	}

	return f.id.String()
}

func (f *uuidFlag) Set(value string) error {
	id, err := uuid.Parse(value)
	if err != nil {
		return err
	}

	f.id, f.set = id, true

	return nil
}

// timeFlag is a flag.Value holding an RFC 3339 timestamp.
type timeFlag struct {
	t time.Time
}

func (f *timeFlag) String() string {
	if f.t.IsZero() {
		return ""
	}

	return f.t.Format(time.RFC3339)
}

func (f *timeFlag) Set(value string) error {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return err
	}

	f.t = t.UTC()

	return nil
}

// statesFlag collects loan states, comma separated or repeated.
type statesFlag struct {
	states []circulation.LoanState
}

func (f *statesFlag) String() string {
	parts := make([]string, 0, len(f.states))
	for _, state := range f.states {
		parts = append(parts, state.String())
	}

	return strings.Join(parts, ",")
}

func (f *statesFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		state, err := circulation.ParseLoanState(part)
		if err != nil {
			return err
		}

		f.states = append(f.states, state)
	}

	return nil
}

// requireIDs fails for every named flag that was not set.
func requireIDs(flags map[string]*uuidFlag) error {
	var errs []error

	for _, name := range slices.Sorted(maps.Keys(flags)) {
		if !flags[name].set {
			errs = append(errs, errors.New("-"+name+" is required"))
		}
	}

	return errors.Join(errs...)
}
