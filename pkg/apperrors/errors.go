package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnknownModel          = errors.New("unknown model")
	ErrDependencyCheckFailed = errors.New("dependency check failed")
	ErrSyncBranchFailed      = errors.New("sync branch failed")

	// ErrCascadeDepthExceeded marks a cascade that stopped at its depth limit.
	// It is reported on the result, never returned from CascadeSync.
	ErrCascadeDepthExceeded = errors.New("cascade depth exceeded")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// BranchError describes one failed cascade branch with enough detail
// to re-run just that branch.
type BranchError struct {
	Level   int
	Stage   error // ErrDependencyCheckFailed or ErrSyncBranchFailed
	Model   string
	ModelID int64
	IDs     []int64
	Err     error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("level %d: %v for %s (model_id=%d, %d ids): %v",
		e.Level, e.Stage, e.Model, e.ModelID, len(e.IDs), e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause.
func (e *BranchError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}
