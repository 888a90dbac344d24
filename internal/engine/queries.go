package engine

import (
	"github.com/taskgate/taskgate/internal/metrics"
	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/notify"
)

// All query methods read the current snapshot and never touch the store, so
// they are safe under any write load.

// IsAvailable reports whether the task can be started right now.
func (e *Engine) IsAvailable(taskID string) bool {
	return e.Snapshot().IsAvailable(taskID)
}

// AvailableTasksFor lists the user's startable tasks, most urgent first.
func (e *Engine) AvailableTasksFor(userID string) []model.Task {
	return e.Snapshot().AvailableTasksFor(userID)
}

// BlockedTasksFor lists the user's tasks held by active restrictions, most
// urgent first.
func (e *Engine) BlockedTasksFor(userID string) []model.Task {
	return e.Snapshot().BlockedTasksFor(userID)
}

// NotificationsFor derives the user's current notifications, ordered by
// severity.
func (e *Engine) NotificationsFor(userID string) []notify.Notification {
	return notify.Derive(e.Snapshot(), userID, notify.Options{
		Now:              e.clock(),
		DependencyWindow: e.dependencyWindow,
	})
}

// MetricsFor computes the user's dashboard counts.
func (e *Engine) MetricsFor(userID string) metrics.UserMetrics {
	return metrics.Compute(e.Snapshot(), userID)
}

// MetricsForAll computes dashboard counts for every known user.
func (e *Engine) MetricsForAll() map[string]metrics.UserMetrics {
	return metrics.ComputeAll(e.Snapshot())
}
