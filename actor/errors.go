package actor

import "errors"

// Sentinel errors returned by the explicit API surface. Everything else the
// runtime can go wrong with is delivered asynchronously: dead letters,
// Terminated notifications, or a Failed system message to the supervisor.
var (
	// ErrNameInUse is returned by Spawn when the parent already has a
	// child registered under the requested name.
	ErrNameInUse = errors.New("actor: child name already in use")

	// ErrAskTimeout completes an ask future when no reply arrived within
	// the caller's window.
	ErrAskTimeout = errors.New("actor: ask timed out")

	// ErrAskCancelled completes an ask future when the caller cancelled
	// it before a reply or timeout.
	ErrAskCancelled = errors.New("actor: ask cancelled")

	// ErrSystemShuttingDown is returned by Spawn once system termination
	// has begun; no new cells are admitted after that point.
	ErrSystemShuttingDown = errors.New("actor: system shutting down")
)
