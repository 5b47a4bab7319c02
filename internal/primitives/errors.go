package primitives

import "errors"

// Failure taxonomy. None of these are fatal; each degrades tracking fidelity.
var (
	// ErrPermissionDenied is returned by a source that lacks the runtime
	// permission it needs. The call is a no-op.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrExecutionRefused is returned by ExecutionHost.RequestForeground when
	// the process is not in front and not exempt.
	ErrExecutionRefused = errors.New("continuous execution refused")

	// ErrProviderCallFailure wraps transient provider errors.
	ErrProviderCallFailure = errors.New("provider call failed")

	ErrCorruptPersistedState = errors.New("corrupt persisted state")

	// ErrStaleEventDiscarded marks events dropped because the session is
	// inactive or the event failed a guard.
	ErrStaleEventDiscarded = errors.New("stale event discarded")

	// ErrNoFix is returned by a one-shot location query that resolved
	// without a location.
	ErrNoFix = errors.New("no location fix")
)
