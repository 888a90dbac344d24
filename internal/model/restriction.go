package model

import (
	"slices"
	"time"
)

// Restriction statuses. Active transitions to exactly one of the two
// terminal states and never back.
const (
	RestrictionActive    = "active"
	RestrictionResolved  = "resolved"
	RestrictionCancelled = "cancelled"
)

// validRestrictionStatuses are the allowed restriction statuses.
var validRestrictionStatuses = []string{
	RestrictionActive,
	RestrictionResolved,
	RestrictionCancelled,
}

// Restriction is a directed dependency edge: the waiting task cannot start
// until the blocking task, owned by BlockingUserID, satisfies the edge.
//
// BlockingUserID is denormalized from the blocking task's assignees so that
// "who is blocking the team" queries need no join; it must equal one of the
// blocking task's assignees at creation time.
type Restriction struct {
	ID             string
	WaitingTaskID  string
	BlockingTaskID string
	BlockingUserID string
	Status         string
	CreatedAt      time.Time
	ResolvedAt     *time.Time

	// AutoResolved marks edges resolved by a task-completion cascade rather
	// than a manual resolve. Reopening the blocking task reinstates exactly
	// these edges.
	AutoResolved bool
}

// IsValidRestrictionStatus checks if the status is one of the allowed
// restriction statuses.
func IsValidRestrictionStatus(status string) bool {
	return slices.Contains(validRestrictionStatuses, status)
}

// Terminal reports whether the restriction has reached a terminal state.
// Terminal restrictions are immutable.
func (r *Restriction) Terminal() bool {
	return r.Status == RestrictionResolved || r.Status == RestrictionCancelled
}
