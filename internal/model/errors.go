package model

import "errors"

// Error variables for engine and store operations.
//
// ErrStoreUnavailable marks retryable collaborator failures; everything else
// is surfaced to the caller for correction. Resolving or cancelling an
// already-terminal restriction is not an error at all (idempotent success).
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrRestrictionNotFound  = errors.New("restriction not found")
	ErrSelfDependency       = errors.New("task cannot depend on itself")
	ErrCycleDetected        = errors.New("restriction would create a dependency cycle")
	ErrBlockingUserMismatch = errors.New("blocking user is not assigned to the blocking task")
	ErrTaskNotCompleted     = errors.New("task is not completed")
	ErrTaskAlreadyCompleted = errors.New("task is already completed")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrTaskIDRequired       = errors.New("task ID is required")
	ErrUserIDRequired       = errors.New("user ID is required")
	ErrTitleRequired        = errors.New("title is required")
	ErrStoreUnavailable     = errors.New("store unavailable")
)
