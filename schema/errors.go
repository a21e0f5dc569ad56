package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrWindowNotFound indicates no window could be resolved.
	ErrWindowNotFound = errors.New("window not found")
	// ErrProfileNotFound indicates no profile could be resolved.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrSpaceNotFound indicates no space could be resolved.
	ErrSpaceNotFound = errors.New("space not found")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrGroupNotFound indicates a requested tab group could not be found.
	ErrGroupNotFound = errors.New("tab group not found")
	// ErrGroupTooSmall indicates fewer than two live tabs resolved for a group.
	ErrGroupTooSmall = errors.New("tab group needs at least two tabs")
	// ErrStaleTarget indicates the target of a suspended operation was
	// destroyed or re-homed before the operation resumed.
	ErrStaleTarget = errors.New("target changed during resolution")
	// ErrShuttingDown indicates the engine is tearing down.
	ErrShuttingDown = errors.New("engine is shutting down")
	// ErrTabAsleep indicates an operation that requires an awake tab.
	ErrTabAsleep = errors.New("tab is asleep")
	// ErrTabAwake indicates an operation that requires a sleeping tab.
	ErrTabAwake = errors.New("tab is awake")
	// ErrTabVisible indicates a tab cannot sleep while visible.
	ErrTabVisible = errors.New("tab is visible")
)
