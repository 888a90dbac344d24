package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/store"
)

// OnTaskCompleted marks a task Completed and auto-resolves every Active
// restriction it was blocking. Each step is a single-record write retried on
// store unavailability, so the cascade is at-least-once: re-running after a
// partial failure finishes the remaining edges and re-resolving an already
// terminal edge is a no-op.
func (e *Engine) OnTaskCompleted(ctx context.Context, taskID string) error {
	if taskID == "" {
		return model.ErrTaskIDRequired
	}

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	// Keep the original stamp on re-runs so reinstatement cutoffs stay put.
	completedAt := e.clock().UTC().Truncate(timePrecision)
	if task.Status == model.StatusCompleted && task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}

	err = e.withRetry(ctx, func() error {
		return e.store.UpdateTaskStatus(ctx, taskID, model.StatusCompleted, &completedAt)
	})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	dependents, err := e.store.ListRestrictions(ctx, store.RestrictionQuery{
		Status:         model.RestrictionActive,
		BlockingTaskID: taskID,
	})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	for _, restriction := range dependents {
		err = e.withRetry(ctx, func() error {
			_, terminateErr := e.store.TerminateRestriction(ctx, restriction.ID,
				model.RestrictionResolved, completedAt, true)

			return terminateErr
		})
		if err != nil {
			return fmt.Errorf("complete task: auto-resolve %s: %w", restriction.ID, err)
		}
	}

	err = e.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	return nil
}

// OnTaskReopened regresses a Completed task to newStatus and reinstates the
// restrictions that were auto-resolved by that completion. Manually resolved
// or cancelled edges stay terminal.
func (e *Engine) OnTaskReopened(ctx context.Context, taskID, newStatus string) error {
	if taskID == "" {
		return model.ErrTaskIDRequired
	}

	if newStatus != model.StatusPending && newStatus != model.StatusInProgress {
		return fmt.Errorf("%w: cannot reopen into %q", model.ErrInvalidStatus, newStatus)
	}

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}

	if task.Status != model.StatusCompleted {
		return fmt.Errorf("%w: %s", model.ErrTaskNotCompleted, taskID)
	}

	completedAt := task.CompletedAt

	err = e.withRetry(ctx, func() error {
		return e.store.UpdateTaskStatus(ctx, taskID, newStatus, nil)
	})
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}

	resolved, err := e.store.ListRestrictions(ctx, store.RestrictionQuery{
		Status:         model.RestrictionResolved,
		BlockingTaskID: taskID,
	})
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}

	for _, restriction := range resolved {
		if !reinstatable(restriction, completedAt) {
			continue
		}

		err = e.withRetry(ctx, func() error {
			_, reinstateErr := e.store.ReinstateRestriction(ctx, restriction.ID)

			return reinstateErr
		})
		if err != nil {
			return fmt.Errorf("reopen task: reinstate %s: %w", restriction.ID, err)
		}
	}

	err = e.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}

	return nil
}

// reinstatable reports whether the restriction was auto-resolved by the
// completion being undone. Edges resolved before the completion stamp belong
// to an earlier completion cycle and stay terminal.
func reinstatable(restriction model.Restriction, completedAt *time.Time) bool {
	if !restriction.AutoResolved {
		return false
	}

	if completedAt == nil {
		return true
	}

	return restriction.ResolvedAt != nil && !restriction.ResolvedAt.Before(*completedAt)
}
