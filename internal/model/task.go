// Package model defines the task and restriction entities shared by the
// store, the restriction graph, and the resolution engine.
package model

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusStalled    = "stalled"
	StatusOnHold     = "on_hold"
)

// validTaskStatuses are the allowed task statuses.
var validTaskStatuses = []string{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusStalled,
	StatusOnHold,
}

// Task is a unit of assignable work with a lifecycle status.
// Tasks are never deleted; Archived soft-deletes them out of every query.
type Task struct {
	ID          string
	Title       string
	Status      string
	Assignees   []string
	ProjectID   string
	DueDate     *time.Time
	CreatedAt   time.Time
	CompletedAt *time.Time
	Archived    bool
}

// IsValidTaskStatus checks if the status is one of the allowed task statuses.
func IsValidTaskStatus(status string) bool {
	return slices.Contains(validTaskStatuses, status)
}

// AssignedTo reports whether userID is among the task's assignees.
func (t *Task) AssignedTo(userID string) bool {
	return slices.Contains(t.Assignees, userID)
}

// AvailabilityEligible reports whether the task's status permits it to become
// available once it has no active blockers. Completed, in-progress and
// on-hold tasks are never available.
func (t *Task) AvailabilityEligible() bool {
	return t.Status == StatusPending || t.Status == StatusStalled
}

// NewID creates a lexicographically sortable identifier. ULIDs encode their
// creation time in the leading bits, so sorting ids sorts by creation order.
func NewID() string {
	return ulid.Make().String()
}
