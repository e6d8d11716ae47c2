package process

import "errors"

// Sequencing and configuration errors returned synchronously at the call site.
var (
	// ErrNotInitialized indicates Execute was called before Initialize.
	ErrNotInitialized = errors.New("process: executable not initialized")

	// ErrAlreadyInitialized indicates Initialize was called more than once.
	ErrAlreadyInitialized = errors.New("process: executable already initialized")

	// ErrAlreadyLaunched indicates the process has already left the not_launched state.
	ErrAlreadyLaunched = errors.New("process: already launched")

	// ErrStopped indicates Stop won the race against Execute.
	ErrStopped = errors.New("process: stopped before launch")

	// ErrNotStarted indicates an operation that needs a running process.
	ErrNotStarted = errors.New("process: not started")

	// ErrNotFinished indicates the exit code was read before the process finished.
	ErrNotFinished = errors.New("process: not finished")

	// ErrSpawnFailure indicates the OS could not create the process.
	// The underlying OS error is wrapped alongside it.
	ErrSpawnFailure = errors.New("process: spawn failed")

	// ErrInvalidConfiguration indicates invalid construction parameters.
	ErrInvalidConfiguration = errors.New("process: invalid configuration")

	// ErrLineTooLong indicates an output line exceeded the line size cap and was truncated.
	ErrLineTooLong = errors.New("process: output line too long")

	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("process: pool closed")
)
