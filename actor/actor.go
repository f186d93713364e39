// Package actor implements the runtime core: refs, cells, behaviors,
// lifecycle, supervision plumbing, death watch, and the ask/reply pattern.
// The dispatcher (package dispatch) drains cells; the supervisor strategies
// (package supervisor) decide what happens when user code fails; this package
// glues the two around the user's Actor implementation.
package actor

import (
	"github.com/actorforge/actorcore/supervisor"
)

// Result is what a behavior reports back for one message.
type Result int

const (
	// Unhandled means the behavior had no case for the message; the
	// runtime publishes it to dead letters labeled "unhandled".
	Unhandled Result = iota
	// Handled means the message was consumed.
	Handled
)

// Actor is the user-implemented message handler. Receive runs on a single
// dispatcher worker at a time, so implementations may mutate their own fields
// without locking. Panics raised inside Receive are caught by the cell and
// routed to the parent's supervision strategy; they never unwind past the
// dispatcher.
type Actor interface {
	Receive(ctx *Context, msg interface{}) Result
}

// Behavior is a single message-handling function. The cell keeps a stack of
// these: the bottom entry always delegates to the user Actor's Receive, and
// Context.Become/Unbecome push and pop replacements above it.
type Behavior func(ctx *Context, msg interface{}) Result

// ActorFunc adapts a plain function to the Actor interface.
type ActorFunc func(ctx *Context, msg interface{}) Result

func (f ActorFunc) Receive(ctx *Context, msg interface{}) Result { return f(ctx, msg) }

// Optional lifecycle hooks. A user Actor implements any subset of these;
// the cell checks with type assertions at each lifecycle transition.
type (
	// PreStarter runs before the first message is delivered. An error
	// here counts as the cell's first failure and feeds the supervisor.
	PreStarter interface {
		PreStart(ctx *Context) error
	}

	// PostStopper runs after the last message, once the cell has
	// committed to stopping. It must not send to self.
	PostStopper interface {
		PostStop(ctx *Context)
	}

	// PreRestarter runs on the old instance just before a restart
	// replaces it, receiving the failure cause and the message being
	// processed when it happened (nil if the failure did not originate
	// in Receive).
	PreRestarter interface {
		PreRestart(ctx *Context, cause error, msg interface{})
	}

	// PostRestarter runs on the fresh instance created by a restart,
	// before any further messages are delivered.
	PostRestarter interface {
		PostRestart(ctx *Context, cause error)
	}
)

// Producer constructs a fresh user actor instance. It is called once at
// spawn and once more on every restart, which is what gives Restart its
// state-discarding semantics.
type Producer func() Actor

// Props bundles everything needed to spawn a cell: how to build the actor
// instance and which runtime resources it should be attached to. The zero
// values fall back to the system's configured defaults.
type Props struct {
	// Producer builds the user actor. Required.
	Producer Producer

	// MailboxCapacity bounds the user-priority lanes of the cell's
	// mailbox. Zero means the system default; negative means unbounded.
	MailboxCapacity int

	// Dispatcher names the dispatcher this cell is pinned to. Empty
	// means the system's default dispatcher.
	Dispatcher string

	// Strategy is the supervision strategy this actor applies to its
	// own children. Nil means supervisor.DefaultStrategy.
	Strategy *supervisor.Strategy
}

// FromProducer is shorthand for Props{Producer: p} with defaults elsewhere.
func FromProducer(p Producer) Props { return Props{Producer: p} }

// FromFunc wraps a bare receive function in Props.
func FromFunc(f ActorFunc) Props {
	return Props{Producer: func() Actor { return f }}
}

func (p Props) strategy() supervisor.Strategy {
	if p.Strategy != nil {
		return *p.Strategy
	}
	return supervisor.DefaultStrategy()
}
