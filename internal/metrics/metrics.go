// Package metrics computes the per-user summary counts shown on dashboard
// cards. Everything is a pure function of a graph snapshot.
package metrics

import (
	"github.com/taskgate/taskgate/internal/graph"
	"github.com/taskgate/taskgate/internal/model"
)

// UserMetrics holds one user's dashboard counts.
type UserMetrics struct {
	UserID string `json:"user_id"`

	// AvailableCount is the number of the user's pending tasks with no
	// active blocker.
	AvailableCount int `json:"available_count"`

	// BlockedCount is the number of the user's pending tasks held by at
	// least one active restriction.
	BlockedCount int `json:"blocked_count"`

	// TeamImpact is the number of active restrictions the user is
	// accountable for: how much of the team is waiting on them.
	TeamImpact int `json:"team_impact"`
}

// Compute derives the metrics for one user from the snapshot.
func Compute(s *graph.Snapshot, userID string) UserMetrics {
	m := UserMetrics{UserID: userID}

	for _, task := range s.Tasks() {
		if !task.AssignedTo(userID) || task.Status != model.StatusPending {
			continue
		}

		if len(s.ActiveBlockersOf(task.ID)) > 0 {
			m.BlockedCount++
		} else {
			m.AvailableCount++
		}
	}

	m.TeamImpact = len(s.ActiveBlockingBy(userID))

	return m
}

// ComputeAll derives metrics for every user that appears as an assignee or a
// blocking user, keyed by user id.
func ComputeAll(s *graph.Snapshot) map[string]UserMetrics {
	users := make(map[string]struct{})

	for _, task := range s.Tasks() {
		for _, assignee := range task.Assignees {
			users[assignee] = struct{}{}
		}
	}

	for _, restriction := range s.Restrictions() {
		if restriction.Status == model.RestrictionActive {
			users[restriction.BlockingUserID] = struct{}{}
		}
	}

	all := make(map[string]UserMetrics, len(users))
	for userID := range users {
		all[userID] = Compute(s, userID)
	}

	return all
}
