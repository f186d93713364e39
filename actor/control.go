package actor

// Control messages travel on the mailbox's reserved system lane
// (message.PrioritySystem): they are never dropped for capacity and are
// drained ahead of user messages in every scheduling slice, which is what
// guarantees supervision and termination progress even under a flooded
// mailbox.

// SystemMessage marks the runtime's internal lifecycle messages. User code
// never constructs these; the cell produces and consumes them.
type SystemMessage interface {
	systemMessage()
}

type (
	// startCell triggers PreStart and the Created -> Running transition.
	startCell struct{}

	// stopCell asks the cell to begin its stop sequence: stop children,
	// run PostStop, close the mailbox, publish Terminated.
	stopCell struct{}

	// restartCell is posted by the parent when its strategy decided
	// Restart for this child.
	restartCell struct {
		cause error
		msg   interface{}
	}

	// suspendCell halts user-message processing; system messages keep
	// flowing. A cell honours it when it arrives, but the runtime does
	// not post it: a failing cell suspends itself, and AllForOne
	// directives are sent to the siblings directly.
	suspendCell struct{}

	// resumeCell undoes suspendCell, discarding nothing.
	resumeCell struct{}

	// watchCell subscribes Watcher to this cell's termination.
	watchCell struct{ watcher Ref }

	// unwatchCell removes a previous subscription.
	unwatchCell struct{ watcher Ref }

	// childTerminated is the parent-internal counterpart of Terminated,
	// used to unlink the child and to unblock a pending stop/restart
	// that is waiting for children to finish.
	childTerminated struct{ child Ref }
)

func (startCell) systemMessage()       {}
func (stopCell) systemMessage()        {}
func (restartCell) systemMessage()     {}
func (suspendCell) systemMessage()     {}
func (resumeCell) systemMessage()      {}
func (watchCell) systemMessage()       {}
func (unwatchCell) systemMessage()     {}
func (childTerminated) systemMessage() {}
func (Failed) systemMessage()          {}
func (Terminated) systemMessage()      {}

// StopCommand returns the control message that begins an actor's stop
// sequence when delivered via Ref.SendSystem. It is the system-level
// counterpart of Context.Stop, exposed so the owning ActorSystem can stop
// actors from outside any cell context.
func StopCommand() SystemMessage { return stopCell{} }

// Failed reports a child failure to its parent cell. The parent's strategy
// produces the directive; if the verdict is Escalate (or the restart budget
// is exhausted) the parent re-posts Failed to its own parent with itself as
// the failing child. The parent's behavior also sees Failed as an ordinary
// message after the directive has been applied, so user actors can observe
// supervision decisions; returning Unhandled for it is not dead-lettered.
type Failed struct {
	Child   Ref
	Cause   error
	Message interface{}
}

// Terminated is delivered to every watcher of a stopped cell, exactly once
// per watcher. A restart does not produce Terminated: the ref survives.
// Watching an already-stopped ref delivers Terminated immediately.
type Terminated struct {
	Ref Ref
}
