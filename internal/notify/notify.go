// Package notify derives per-user notifications from a restriction graph
// snapshot. Notifications are ephemeral: recomputed fresh on every call,
// never persisted.
package notify

import (
	"fmt"
	"slices"
	"time"

	"github.com/taskgate/taskgate/internal/graph"
	"github.com/taskgate/taskgate/internal/model"
)

// Severity orders notifications; higher is more urgent.
type Severity int

// Severity tiers.
const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Notification categories.
const (
	CategoryTaskAvailable       = "task_available"
	CategoryBlockingOthers      = "blocking_others"
	CategoryDeadlineCritical    = "deadline_critical"
	CategoryDependencyCompleted = "dependency_completed"
)

// Due-date windows for severity escalation.
const (
	availableDueSoonWindow = 3 * 24 * time.Hour
	deadlineCriticalWindow = 2 * 24 * time.Hour
)

// Notification is a single derived alert for one user.
type Notification struct {
	Category      string
	Severity      Severity
	TaskID        string
	RestrictionID string
	AffectedUsers int
	Message       string
}

// Options configures derivation.
type Options struct {
	// Now anchors every due-date comparison.
	Now time.Time

	// DependencyWindow bounds how far back completion cascades still produce
	// DependencyCompleted notifications.
	DependencyWindow time.Duration
}

// Derive computes the user's notifications from the snapshot, ordered by
// severity descending and stable by generation order within a tier.
func Derive(s *graph.Snapshot, userID string, opts Options) []Notification {
	var notifications []Notification

	for _, task := range s.Tasks() {
		if !task.AssignedTo(userID) {
			continue
		}

		notifications = append(notifications, deriveForTask(s, userID, task, opts.Now)...)
	}

	notifications = append(notifications, deriveDependencyCompleted(s, userID, opts)...)

	// Stable sort keeps generation order within each severity tier.
	slices.SortStableFunc(notifications, func(a, b Notification) int {
		return int(b.Severity) - int(a.Severity)
	})

	return notifications
}

func deriveForTask(s *graph.Snapshot, userID string, task model.Task, now time.Time) []Notification {
	var notifications []Notification

	if task.Status == model.StatusPending && s.IsAvailable(task.ID) {
		severity := SeverityMedium
		if dueWithin(task, now, availableDueSoonWindow) {
			severity = SeverityHigh
		}

		notifications = append(notifications, Notification{
			Category: CategoryTaskAvailable,
			Severity: severity,
			TaskID:   task.ID,
			Message:  fmt.Sprintf("%q is ready to start", task.Title),
		})
	}

	dependents := s.ActiveDependentsOf(task.ID)
	if len(dependents) > 0 {
		affected := affectedUserCount(s, dependents, userID)

		notifications = append(notifications, Notification{
			Category:      CategoryBlockingOthers,
			Severity:      SeverityCritical,
			TaskID:        task.ID,
			AffectedUsers: affected,
			Message:       fmt.Sprintf("%q is holding up %d %s", task.Title, affected, plural(affected, "person", "people")),
		})

		if dueWithin(task, now, deadlineCriticalWindow) {
			notifications = append(notifications, Notification{
				Category: CategoryDeadlineCritical,
				Severity: SeverityCritical,
				TaskID:   task.ID,
				Message:  fmt.Sprintf("%q is due soon and others are waiting on it", task.Title),
			})
		}
	}

	return notifications
}

func deriveDependencyCompleted(s *graph.Snapshot, userID string, opts Options) []Notification {
	window := opts.DependencyWindow
	if window <= 0 {
		return nil
	}

	var notifications []Notification

	for _, restriction := range s.AutoResolvedSince(opts.Now.Add(-window)) {
		waiting, ok := s.Task(restriction.WaitingTaskID)
		if !ok || !waiting.AssignedTo(userID) {
			continue
		}

		blockingTitle := restriction.BlockingTaskID
		if blocking, found := s.Task(restriction.BlockingTaskID); found {
			blockingTitle = fmt.Sprintf("%q", blocking.Title)
		}

		notifications = append(notifications, Notification{
			Category:      CategoryDependencyCompleted,
			Severity:      SeverityMedium,
			TaskID:        restriction.WaitingTaskID,
			RestrictionID: restriction.ID,
			Message:       fmt.Sprintf("%s completed; %q is no longer blocked by it", blockingTitle, waiting.Title),
		})
	}

	return notifications
}

// affectedUserCount counts the distinct assignees of the waiting tasks,
// excluding the blocking user themselves.
func affectedUserCount(s *graph.Snapshot, dependents []model.Restriction, excludeUserID string) int {
	users := make(map[string]struct{})

	for _, restriction := range dependents {
		waiting, ok := s.Task(restriction.WaitingTaskID)
		if !ok {
			continue
		}

		for _, assignee := range waiting.Assignees {
			if assignee != excludeUserID {
				users[assignee] = struct{}{}
			}
		}
	}

	return len(users)
}

func dueWithin(task model.Task, now time.Time, window time.Duration) bool {
	return task.DueDate != nil && !task.DueDate.After(now.Add(window))
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}

	return plural
}
