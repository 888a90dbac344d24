package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/engine"
	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/notify"
	"github.com/taskgate/taskgate/internal/store"
)

var now = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*engine.Engine, *store.Store) {
	t.Helper()

	events := feed.New()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "taskgate.db"), events)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	e, err := engine.New(context.Background(), s, events,
		engine.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Close() })

	return e, s
}

func putTask(t *testing.T, s *store.Store, title, status string, assignees ...string) model.Task {
	t.Helper()

	task, err := s.PutTask(context.Background(), model.Task{
		Title:     title,
		Status:    status,
		Assignees: assignees,
	})
	require.NoError(t, err)

	return task
}

func putTaskDue(t *testing.T, s *store.Store, title, status string, due time.Time, assignees ...string) model.Task {
	t.Helper()

	task, err := s.PutTask(context.Background(), model.Task{
		Title:     title,
		Status:    status,
		Assignees: assignees,
		DueDate:   &due,
	})
	require.NoError(t, err)

	return task
}

func TestCreateRestrictionValidation(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	_, err := e.CreateRestriction(ctx, "", blocking.ID, "bruno")
	require.ErrorIs(t, err, model.ErrTaskIDRequired)

	_, err = e.CreateRestriction(ctx, waiting.ID, blocking.ID, "")
	require.ErrorIs(t, err, model.ErrUserIDRequired)

	_, err = e.CreateRestriction(ctx, waiting.ID, waiting.ID, "ana")
	require.ErrorIs(t, err, model.ErrSelfDependency)

	_, err = e.CreateRestriction(ctx, "missing", blocking.ID, "bruno")
	require.ErrorIs(t, err, model.ErrTaskNotFound)

	_, err = e.CreateRestriction(ctx, waiting.ID, "missing", "bruno")
	require.ErrorIs(t, err, model.ErrTaskNotFound)

	// The owner must be assigned to the blocking task, not the waiting one.
	_, err = e.CreateRestriction(ctx, waiting.ID, blocking.ID, "ana")
	require.ErrorIs(t, err, model.ErrBlockingUserMismatch)
}

func TestCreateRestrictionBlocksTheWaitingTask(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	require.True(t, e.IsAvailable(waiting.ID))

	created, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionActive, created.Status)
	assert.False(t, created.AutoResolved)

	assert.False(t, e.IsAvailable(waiting.ID))
	assert.False(t, e.IsAvailable(blocking.ID), "in-progress tasks are never available")
}

func TestCreateRestrictionDuplicateReturnsExistingEdge(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	first, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	second, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	restrictions, err := s.ListRestrictions(ctx, store.RestrictionQuery{})
	require.NoError(t, err)
	assert.Len(t, restrictions, 1)
}

func TestCreateRestrictionRejectsCycles(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	a := putTask(t, s, "a", model.StatusPending, "ana")
	b := putTask(t, s, "b", model.StatusPending, "ana")
	c := putTask(t, s, "c", model.StatusPending, "ana")

	_, err := e.CreateRestriction(ctx, a.ID, b.ID, "ana")
	require.NoError(t, err)

	_, err = e.CreateRestriction(ctx, b.ID, c.ID, "ana")
	require.NoError(t, err)

	// c -> a would close the loop a -> b -> c -> a.
	_, err = e.CreateRestriction(ctx, c.ID, a.ID, "ana")
	require.ErrorIs(t, err, model.ErrCycleDetected)

	// The same direction twice is not a cycle.
	_, err = e.CreateRestriction(ctx, a.ID, c.ID, "ana")
	require.NoError(t, err)
}

func TestResolveRestrictionUnblocks(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	created, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	require.NoError(t, e.ResolveRestriction(ctx, created.ID))
	assert.True(t, e.IsAvailable(waiting.ID))

	got, err := s.GetRestriction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionResolved, got.Status)
	assert.False(t, got.AutoResolved, "manual resolution is not flagged as automatic")
	require.NotNil(t, got.ResolvedAt)

	// Terminal transitions are idempotent: repeating is a success, and the
	// record keeps its first terminal state.
	require.NoError(t, e.ResolveRestriction(ctx, created.ID))
	require.NoError(t, e.CancelRestriction(ctx, created.ID))

	got, err = s.GetRestriction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionResolved, got.Status)
}

func TestTerminateUnknownRestriction(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)

	require.ErrorIs(t, e.ResolveRestriction(context.Background(), "missing"), model.ErrRestrictionNotFound)
	require.ErrorIs(t, e.CancelRestriction(context.Background(), "missing"), model.ErrRestrictionNotFound)
}

func TestOnTaskCompletedCascades(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")
	w1 := putTask(t, s, "first waiter", model.StatusPending, "ana")
	w2 := putTask(t, s, "second waiter", model.StatusPending, "carla")

	r1, err := e.CreateRestriction(ctx, w1.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	r2, err := e.CreateRestriction(ctx, w2.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))

	completed, err := s.GetTask(ctx, blocking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	for _, id := range []string{r1.ID, r2.ID} {
		got, getErr := s.GetRestriction(ctx, id)
		require.NoError(t, getErr)
		assert.Equal(t, model.RestrictionResolved, got.Status)
		assert.True(t, got.AutoResolved)
	}

	assert.True(t, e.IsAvailable(w1.ID))
	assert.True(t, e.IsAvailable(w2.ID))

	// Re-running the cascade is harmless and keeps the original stamp.
	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))

	again, err := s.GetTask(ctx, blocking.ID)
	require.NoError(t, err)
	assert.Equal(t, completed.CompletedAt, again.CompletedAt)
}

func TestOnTaskCompletedLeavesManualEdgesToOtherTasksAlone(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")
	other := putTask(t, s, "other blocker", model.StatusInProgress, "bruno")
	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")

	_, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	held, err := e.CreateRestriction(ctx, waiting.ID, other.ID, "bruno")
	require.NoError(t, err)

	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))

	// Still blocked by the second edge.
	assert.False(t, e.IsAvailable(waiting.ID))

	got, err := s.GetRestriction(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionActive, got.Status)
}

func TestOnTaskReopenedReinstatesAutoResolvedEdges(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")
	w1 := putTask(t, s, "auto waiter", model.StatusPending, "ana")
	w2 := putTask(t, s, "manual waiter", model.StatusPending, "carla")

	auto, err := e.CreateRestriction(ctx, w1.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	manual, err := e.CreateRestriction(ctx, w2.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	// Manually resolved before completion; must stay resolved after reopen.
	require.NoError(t, e.ResolveRestriction(ctx, manual.ID))

	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))
	require.NoError(t, e.OnTaskReopened(ctx, blocking.ID, model.StatusInProgress))

	reopened, err := s.GetTask(ctx, blocking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)

	reinstated, err := s.GetRestriction(ctx, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionActive, reinstated.Status)
	assert.False(t, reinstated.AutoResolved)
	assert.Nil(t, reinstated.ResolvedAt)

	untouched, err := s.GetRestriction(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RestrictionResolved, untouched.Status)

	assert.False(t, e.IsAvailable(w1.ID))
	assert.True(t, e.IsAvailable(w2.ID))
}

func TestOnTaskReopenedValidation(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	pending := putTask(t, s, "pending", model.StatusPending, "ana")

	require.ErrorIs(t, e.OnTaskReopened(ctx, pending.ID, model.StatusCompleted), model.ErrInvalidStatus)
	require.ErrorIs(t, e.OnTaskReopened(ctx, pending.ID, model.StatusPending), model.ErrTaskNotCompleted)
	require.ErrorIs(t, e.OnTaskReopened(ctx, "missing", model.StatusPending), model.ErrTaskNotFound)
}

func TestAvailableAndBlockedListsOrderByUrgency(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	undated := putTask(t, s, "undated", model.StatusPending, "ana")
	sooner := putTaskDue(t, s, "sooner", model.StatusPending, now.Add(24*time.Hour), "ana")
	later := putTaskDue(t, s, "later", model.StatusPending, now.Add(72*time.Hour), "ana")
	blocked := putTask(t, s, "blocked", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	_, err := e.CreateRestriction(ctx, blocked.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	available := e.AvailableTasksFor("ana")
	require.Len(t, available, 3)

	// No due date means maximally urgent, then due dates ascending.
	assert.Equal(t, undated.ID, available[0].ID)
	assert.Equal(t, sooner.ID, available[1].ID)
	assert.Equal(t, later.ID, available[2].ID)

	held := e.BlockedTasksFor("ana")
	require.Len(t, held, 1)
	assert.Equal(t, blocked.ID, held[0].ID)
}

func TestNotificationsForDeadlineScenario(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	// bruno's task is due tomorrow and holds up two people.
	blocking := putTaskDue(t, s, "design review", model.StatusInProgress, now.Add(24*time.Hour), "bruno")
	w1 := putTask(t, s, "frontend build", model.StatusPending, "ana")
	w2 := putTask(t, s, "api rollout", model.StatusPending, "carla")

	_, err := e.CreateRestriction(ctx, w1.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	_, err = e.CreateRestriction(ctx, w2.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	notifications := e.NotificationsFor("bruno")
	require.NotEmpty(t, notifications)

	categories := make(map[string]notify.Notification)
	for _, n := range notifications {
		categories[n.Category] = n
	}

	blockingOthers, ok := categories[notify.CategoryBlockingOthers]
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, blockingOthers.Severity)
	assert.Equal(t, 2, blockingOthers.AffectedUsers)

	deadline, ok := categories[notify.CategoryDeadlineCritical]
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, deadline.Severity)
	assert.Equal(t, blocking.ID, deadline.TaskID)
}

func TestDependencyCompletedNotificationAfterCascade(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	blocking := putTask(t, s, "schema migration", model.StatusInProgress, "bruno")
	waiting := putTask(t, s, "backfill job", model.StatusPending, "ana")

	created, err := e.CreateRestriction(ctx, waiting.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))

	var completed []notify.Notification

	for _, n := range e.NotificationsFor("ana") {
		if n.Category == notify.CategoryDependencyCompleted {
			completed = append(completed, n)
		}
	}

	require.Len(t, completed, 1)
	assert.Equal(t, waiting.ID, completed[0].TaskID)
	assert.Equal(t, created.ID, completed[0].RestrictionID)
}

func TestMetricsForReflectEngineState(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	free := putTask(t, s, "free", model.StatusPending, "ana")
	blocked := putTask(t, s, "blocked", model.StatusPending, "ana")
	blocking := putTask(t, s, "blocking", model.StatusInProgress, "bruno")

	_, err := e.CreateRestriction(ctx, blocked.ID, blocking.ID, "bruno")
	require.NoError(t, err)

	ana := e.MetricsFor("ana")
	assert.Equal(t, 1, ana.AvailableCount)
	assert.Equal(t, 1, ana.BlockedCount)
	assert.Equal(t, 0, ana.TeamImpact)

	bruno := e.MetricsFor("bruno")
	assert.Equal(t, 1, bruno.TeamImpact)

	all := e.MetricsForAll()
	assert.Contains(t, all, "ana")
	assert.Contains(t, all, "bruno")

	require.NoError(t, e.OnTaskCompleted(ctx, blocking.ID))

	ana = e.MetricsFor("ana")
	assert.Equal(t, 2, ana.AvailableCount)
	assert.Equal(t, 0, ana.BlockedCount)

	_ = free
}

func TestSnapshotBuiltAtUsesInjectedClock(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)

	assert.True(t, e.Snapshot().BuiltAt().Equal(now))
}

func TestSnapshotRefreshesOnExternalWrites(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)

	// A write through the store alone, without any engine call, must reach
	// the snapshot via the change feed.
	task := putTask(t, s, "external", model.StatusPending, "ana")

	require.Eventually(t, func() bool {
		return e.IsAvailable(task.ID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestActiveBlockersOf(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()

	waiting := putTask(t, s, "waiting", model.StatusPending, "ana")
	b1 := putTask(t, s, "first blocker", model.StatusInProgress, "bruno")
	b2 := putTask(t, s, "second blocker", model.StatusInProgress, "bruno")

	r1, err := e.CreateRestriction(ctx, waiting.ID, b1.ID, "bruno")
	require.NoError(t, err)

	r2, err := e.CreateRestriction(ctx, waiting.ID, b2.ID, "bruno")
	require.NoError(t, err)

	require.NoError(t, e.ResolveRestriction(ctx, r2.ID))

	blockers, err := e.ActiveBlockersOf(ctx, waiting.ID)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, r1.ID, blockers[0].ID)

	_, err = e.ActiveBlockersOf(ctx, "missing")
	require.ErrorIs(t, err, model.ErrTaskNotFound)
}
