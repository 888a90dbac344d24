// Package graph builds an immutable, queryable view of the restriction
// graph from the current task and restriction collections. A Snapshot is
// never mutated after Build; consumers swap whole snapshots, so readers
// never observe a partially-built index.
package graph

import (
	"slices"
	"strings"
	"time"

	"github.com/taskgate/taskgate/internal/model"
)

// Snapshot is a point-in-time view of tasks and restrictions with inverted
// indices over the Active edges.
type Snapshot struct {
	builtAt time.Time

	tasks     map[string]model.Task
	taskOrder []string // task ids in creation order

	all []model.Restriction // every restriction, creation order

	// Active-edge indices.
	byWaiting  map[string][]model.Restriction // waiting task id -> blockers
	byBlocking map[string][]model.Restriction // blocking task id -> dependents
	byUser     map[string][]model.Restriction // blocking user id -> edges
}

// Build constructs a snapshot. Restriction slices in the indices preserve
// creation order (ids sort by creation time).
func Build(tasks []model.Task, restrictions []model.Restriction, builtAt time.Time) *Snapshot {
	snapshot := &Snapshot{
		builtAt:    builtAt,
		tasks:      make(map[string]model.Task, len(tasks)),
		taskOrder:  make([]string, 0, len(tasks)),
		all:        make([]model.Restriction, len(restrictions)),
		byWaiting:  make(map[string][]model.Restriction),
		byBlocking: make(map[string][]model.Restriction),
		byUser:     make(map[string][]model.Restriction),
	}

	for _, task := range tasks {
		if task.Archived {
			continue
		}

		snapshot.tasks[task.ID] = task
		snapshot.taskOrder = append(snapshot.taskOrder, task.ID)
	}

	slices.Sort(snapshot.taskOrder)

	copy(snapshot.all, restrictions)
	slices.SortFunc(snapshot.all, func(a, b model.Restriction) int {
		return strings.Compare(a.ID, b.ID)
	})

	for _, restriction := range snapshot.all {
		if restriction.Status != model.RestrictionActive {
			continue
		}

		snapshot.byWaiting[restriction.WaitingTaskID] = append(snapshot.byWaiting[restriction.WaitingTaskID], restriction)
		snapshot.byBlocking[restriction.BlockingTaskID] = append(snapshot.byBlocking[restriction.BlockingTaskID], restriction)
		snapshot.byUser[restriction.BlockingUserID] = append(snapshot.byUser[restriction.BlockingUserID], restriction)
	}

	return snapshot
}

// BuiltAt returns the time the snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Task returns the task with the given id, if present.
func (s *Snapshot) Task(id string) (model.Task, bool) {
	task, ok := s.tasks[id]

	return task, ok
}

// Tasks returns all tasks in creation order.
func (s *Snapshot) Tasks() []model.Task {
	tasks := make([]model.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		tasks = append(tasks, s.tasks[id])
	}

	return tasks
}

// Restrictions returns every restriction, terminal ones included, in
// creation order.
func (s *Snapshot) Restrictions() []model.Restriction {
	return slices.Clone(s.all)
}

// IsAvailable reports whether the task can be picked up right now: its
// status permits work and no Active restriction is blocking it.
func (s *Snapshot) IsAvailable(taskID string) bool {
	task, ok := s.tasks[taskID]
	if !ok {
		return false
	}

	return task.AvailabilityEligible() && len(s.byWaiting[taskID]) == 0
}

// ActiveBlockersOf returns the Active restrictions blocking the given
// waiting task, in creation order.
func (s *Snapshot) ActiveBlockersOf(taskID string) []model.Restriction {
	return slices.Clone(s.byWaiting[taskID])
}

// ActiveDependentsOf returns the Active restrictions waiting on the given
// blocking task, in creation order.
func (s *Snapshot) ActiveDependentsOf(taskID string) []model.Restriction {
	return slices.Clone(s.byBlocking[taskID])
}

// ActiveBlockingBy returns the Active restrictions accountable to the given
// user, in creation order.
func (s *Snapshot) ActiveBlockingBy(userID string) []model.Restriction {
	return slices.Clone(s.byUser[userID])
}

// BlockingLoadOf counts the distinct waiting tasks currently blocked by
// restrictions accountable to the given user.
func (s *Snapshot) BlockingLoadOf(userID string) int {
	waiting := make(map[string]struct{})
	for _, restriction := range s.byUser[userID] {
		waiting[restriction.WaitingTaskID] = struct{}{}
	}

	return len(waiting)
}

// AvailableTasksFor returns the user's available tasks in urgency order.
func (s *Snapshot) AvailableTasksFor(userID string) []model.Task {
	var available []model.Task

	for _, id := range s.taskOrder {
		task := s.tasks[id]
		if task.AssignedTo(userID) && s.IsAvailable(id) {
			available = append(available, task)
		}
	}

	sortByUrgency(available)

	return available
}

// BlockedTasksFor returns the user's tasks that would be workable but for at
// least one Active restriction, in urgency order.
func (s *Snapshot) BlockedTasksFor(userID string) []model.Task {
	var blocked []model.Task

	for _, id := range s.taskOrder {
		task := s.tasks[id]
		if task.AssignedTo(userID) && task.AvailabilityEligible() && len(s.byWaiting[id]) > 0 {
			blocked = append(blocked, task)
		}
	}

	sortByUrgency(blocked)

	return blocked
}

// AutoResolvedSince returns restrictions resolved by completion cascades at
// or after cutoff, in creation order.
func (s *Snapshot) AutoResolvedSince(cutoff time.Time) []model.Restriction {
	var recent []model.Restriction

	for _, restriction := range s.all {
		if restriction.Status != model.RestrictionResolved || !restriction.AutoResolved {
			continue
		}

		if restriction.ResolvedAt != nil && !restriction.ResolvedAt.Before(cutoff) {
			recent = append(recent, restriction)
		}
	}

	return recent
}

// WouldCycle reports whether adding an Active edge "waiting depends on
// blocking" would close a cycle: that is, whether the waiting task is already
// reachable from the blocking task through the Active dependency chain.
func (s *Snapshot) WouldCycle(waitingTaskID, blockingTaskID string) bool {
	if waitingTaskID == blockingTaskID {
		return true
	}

	visited := make(map[string]bool)
	stack := []string{blockingTaskID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true

		for _, restriction := range s.byWaiting[current] {
			next := restriction.BlockingTaskID
			if next == waitingTaskID {
				return true
			}

			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}

	return false
}

// sortByUrgency orders tasks by due date ascending with undated tasks first
// (an undated task is treated as most urgent), ties broken by creation order.
func sortByUrgency(tasks []model.Task) {
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return -1
		case a.DueDate != nil && b.DueDate == nil:
			return 1
		case a.DueDate != nil && b.DueDate != nil:
			if a.DueDate.Before(*b.DueDate) {
				return -1
			}

			if b.DueDate.Before(*a.DueDate) {
				return 1
			}
		}

		return strings.Compare(a.ID, b.ID)
	})
}
