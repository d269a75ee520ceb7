package circulation

import "context"

// ConsistencyLevel defines which database non-transactional reads may use.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. This is the default.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows list and report reads from a replica, if one is configured.
	// Transactions always run on the primary regardless of this setting.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "circulation.consistency_level"

// WithStrongConsistency returns a context whose reads go to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context whose non-transactional reads may go to a replica.
//
// Example usage:
//
//	ctx = circulation.WithEventualConsistency(ctx)
//	overdue, err := store.Loans().Find(ctx, filter)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context, defaulting to StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
