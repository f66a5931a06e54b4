package engine

import "fmt"

// ValidationError means the input was rejected before any network I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionError means the backend rejected a write. RequiresReauth is set
// when the operation needs a recent sign-in before it can be retried, which
// is how email and other identity changes behave.
type PermissionError struct {
	Op             string
	RequiresReauth bool
	Err            error
}

func (e *PermissionError) Error() string {
	if e.RequiresReauth {
		return fmt.Sprintf("%s: requires recent authentication", e.Op)
	}
	return fmt.Sprintf("%s: permission denied", e.Op)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// NetworkError wraps a transient failure; retrying the whole operation is
// safe.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PartialPropagationError reports that some post-propagation chunks failed
// after others succeeded. The profile document is already correct; only
// denormalized copies lag, so the caller may retry just the propagation step.
type PartialPropagationError struct {
	Succeeded    int
	Failed       int
	FailedChunks []int
	Err          error
}

func (e *PartialPropagationError) Error() string {
	return fmt.Sprintf("propagation incomplete: %d of %d chunks failed: %v",
		e.Failed, e.Succeeded+e.Failed, e.Err)
}

func (e *PartialPropagationError) Unwrap() error { return e.Err }
