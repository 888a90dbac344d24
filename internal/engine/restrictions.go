package engine

import (
	"context"
	"fmt"

	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/store"
)

// CreateRestriction validates and persists a new Active edge: waitingTaskID
// waits on blockingTaskID, owned by blockingUserID.
//
// An identical Active pair already on record is returned as-is instead of
// erroring, so retried submissions converge. Edges that would close a
// dependency loop are rejected with ErrCycleDetected.
func (e *Engine) CreateRestriction(ctx context.Context, waitingTaskID, blockingTaskID, blockingUserID string) (model.Restriction, error) {
	if waitingTaskID == "" || blockingTaskID == "" {
		return model.Restriction{}, model.ErrTaskIDRequired
	}

	if blockingUserID == "" {
		return model.Restriction{}, model.ErrUserIDRequired
	}

	if waitingTaskID == blockingTaskID {
		return model.Restriction{}, fmt.Errorf("%w: %s", model.ErrSelfDependency, waitingTaskID)
	}

	// Validate against current store state, not a possibly stale snapshot.
	err := e.Refresh(ctx)
	if err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: %w", err)
	}

	if _, err = e.store.GetTask(ctx, waitingTaskID); err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: waiting task: %w", err)
	}

	blocking, err := e.store.GetTask(ctx, blockingTaskID)
	if err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: blocking task: %w", err)
	}

	if !blocking.AssignedTo(blockingUserID) {
		return model.Restriction{}, fmt.Errorf("%w: user %s is not assigned to task %s",
			model.ErrBlockingUserMismatch, blockingUserID, blockingTaskID)
	}

	existing, found, err := e.store.FindActivePair(ctx, waitingTaskID, blockingTaskID)
	if err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: %w", err)
	}

	if found {
		return existing, nil
	}

	if e.Snapshot().WouldCycle(waitingTaskID, blockingTaskID) {
		return model.Restriction{}, fmt.Errorf("%w: %s -> %s",
			model.ErrCycleDetected, waitingTaskID, blockingTaskID)
	}

	created, err := e.store.InsertRestriction(ctx, model.Restriction{
		WaitingTaskID:  waitingTaskID,
		BlockingTaskID: blockingTaskID,
		BlockingUserID: blockingUserID,
		Status:         model.RestrictionActive,
		CreatedAt:      e.clock().UTC().Truncate(timePrecision),
	})
	if err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: %w", err)
	}

	err = e.Refresh(ctx)
	if err != nil {
		return model.Restriction{}, fmt.Errorf("create restriction: %w", err)
	}

	return created, nil
}

// ResolveRestriction moves a restriction to Resolved. Resolving an already
// terminal restriction is a no-op success; an unknown id errors.
func (e *Engine) ResolveRestriction(ctx context.Context, id string) error {
	return e.terminate(ctx, id, model.RestrictionResolved)
}

// CancelRestriction moves a restriction to Cancelled, with the same
// idempotency as ResolveRestriction.
func (e *Engine) CancelRestriction(ctx context.Context, id string) error {
	return e.terminate(ctx, id, model.RestrictionCancelled)
}

func (e *Engine) terminate(ctx context.Context, id, status string) error {
	if id == "" {
		return model.ErrRestrictionNotFound
	}

	_, err := e.store.TerminateRestriction(ctx, id, status, e.clock().UTC().Truncate(timePrecision), false)
	if err != nil {
		return fmt.Errorf("%s restriction: %w", statusVerb(status), err)
	}

	err = e.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("%s restriction: %w", statusVerb(status), err)
	}

	return nil
}

func statusVerb(status string) string {
	if status == model.RestrictionCancelled {
		return "cancel"
	}

	return "resolve"
}

// ActiveBlockersOf lists the Active restrictions holding a task, in creation
// order.
func (e *Engine) ActiveBlockersOf(ctx context.Context, taskID string) ([]model.Restriction, error) {
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	return e.store.ListRestrictions(ctx, store.RestrictionQuery{
		Status:        model.RestrictionActive,
		WaitingTaskID: taskID,
	})
}
