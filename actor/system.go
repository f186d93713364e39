package actor

import (
	"log/slog"

	"github.com/actorforge/actorcore/dispatch"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/observability"
)

// System is the slice of the actor system a cell needs to operate. The
// concrete implementation lives in package system; keeping this an interface
// here breaks the import cycle and lets tests drive cells with a stub.
type System interface {
	// DeadLetter publishes an undeliverable envelope with a reason code
	// (mailbox-full, stale-ref, unhandled, ask-expired, stopped,
	// remote-delivery-failed). Implementations log it and bump the
	// dropped-messages counter; they must never block.
	DeadLetter(env message.Envelope, reason string)

	// Sink is the metrics boundary.
	Sink() observability.Sink

	// Logger is the structured event log for lifecycle events (failures,
	// restarts, escalations).
	Logger() *slog.Logger

	// NextUid mints the incarnation uid for a newly spawned cell.
	NextUid() uint64

	// DispatcherByName resolves a dispatcher; the empty string resolves
	// the default dispatcher, and unknown names fall back to it too.
	DispatcherByName(name string) *dispatch.Dispatcher

	// DefaultMailboxCapacity is applied when Props leave capacity zero.
	DefaultMailboxCapacity() int

	// RegisterCell and UnregisterCell keep the system's path registry
	// and active-actor gauge in step with cell lifecycles.
	RegisterCell(c *Cell)
	UnregisterCell(c *Cell)

	// Terminating reports whether system shutdown has begun; spawns are
	// rejected from then on.
	Terminating() bool

	// EscalateFromRoot is invoked when a failure escalates past the root
	// guardian. The system reacts by shutting down.
	EscalateFromRoot(cause error)
}
