package model_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskgate/taskgate/internal/model"
)

func TestTaskStatusValidity(t *testing.T) {
	t.Parallel()

	for _, status := range []string{
		model.StatusPending,
		model.StatusInProgress,
		model.StatusCompleted,
		model.StatusStalled,
		model.StatusOnHold,
	} {
		assert.True(t, model.IsValidTaskStatus(status), status)
	}

	assert.False(t, model.IsValidTaskStatus("open"))
	assert.False(t, model.IsValidTaskStatus(""))
}

func TestAvailabilityEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   string
		eligible bool
	}{
		{model.StatusPending, true},
		{model.StatusStalled, true},
		{model.StatusInProgress, false},
		{model.StatusCompleted, false},
		{model.StatusOnHold, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()

			task := model.Task{Status: tt.status}
			assert.Equal(t, tt.eligible, task.AvailabilityEligible())
		})
	}
}

func TestAssignedTo(t *testing.T) {
	t.Parallel()

	task := model.Task{Assignees: []string{"ana", "bruno"}}

	assert.True(t, task.AssignedTo("ana"))
	assert.False(t, task.AssignedTo("carla"))
	assert.False(t, (&model.Task{}).AssignedTo("ana"))
}

func TestRestrictionTerminal(t *testing.T) {
	t.Parallel()

	active := model.Restriction{Status: model.RestrictionActive}
	resolved := model.Restriction{Status: model.RestrictionResolved}
	cancelled := model.Restriction{Status: model.RestrictionCancelled}

	assert.False(t, active.Terminal())
	assert.True(t, resolved.Terminal())
	assert.True(t, cancelled.Terminal())
}

func TestNewIDSortsByCreationOrder(t *testing.T) {
	t.Parallel()

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = model.NewID()
	}

	assert.True(t, slices.IsSorted(ids), "ids generated in sequence must sort in order")
}
