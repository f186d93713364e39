package actor

import (
	"github.com/actorforge/actorcore/message"
)

// Ref is the opaque, location-transparent handle to an actor. Refs are
// immutable after construction and safe to share across goroutines; they may
// outlive the cell they point to, in which case sends route to dead letters.
//
// Equality is by (Path, Uid): a ref minted before a cell at the same path was
// stopped and re-created carries the old uid and is stale.
type Ref interface {
	// Path returns the hierarchical path, e.g. "/user/parent/child".
	Path() string

	// Uid identifies this incarnation of the path.
	Uid() uint64

	// Tell sends a fire-and-forget message. Tell never fails
	// synchronously: capacity rejections and stale refs route the
	// message to dead letters and return normally.
	Tell(msg interface{}, sender Ref)

	// TellWithPriority is Tell on an explicit priority lane. Priorities
	// at or above message.PrioritySystem are clamped just below it;
	// the system lane is reserved for the runtime.
	TellWithPriority(msg interface{}, sender Ref, prio message.Priority)

	// Forward re-sends an existing envelope preserving its original
	// sender, priority, and correlation metadata.
	Forward(env message.Envelope)

	// SendSystem delivers a runtime control message on the reserved
	// system lane. It reports false when the target can no longer
	// accept (stopped cell, closed mailbox); callers that need
	// stop-notification semantics react to that (see Context.Watch).
	SendSystem(msg SystemMessage) bool
}

// Equals reports ref identity: same path and same incarnation uid. Either
// argument may be nil.
func Equals(a, b Ref) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Path() == b.Path() && a.Uid() == b.Uid()
}

// refKey is the comparable form of ref identity, used for watcher sets.
type refKey struct {
	path string
	uid  uint64
}

func keyOf(r Ref) refKey { return refKey{path: r.Path(), uid: r.Uid()} }

// NoSender is the sentinel used when a message has no meaningful reply
// target. Telling NoSender silently discards; it is not dead letters.
var NoSender Ref = noSender{}

type noSender struct{}

func (noSender) Path() string                                        { return "" }
func (noSender) Uid() uint64                                         { return 0 }
func (noSender) Tell(interface{}, Ref)                               {}
func (noSender) TellWithPriority(interface{}, Ref, message.Priority) {}
func (noSender) Forward(message.Envelope)                            {}
func (noSender) SendSystem(SystemMessage) bool                       { return false }

// senderOrNil converts a Ref into the envelope's Sender field, mapping the
// NoSender sentinel to nil so dead-letter logs stay readable.
func senderOrNil(r Ref) message.Sender {
	if r == nil || r == NoSender {
		return nil
	}
	return r
}

// senderRef converts an envelope Sender back into a Ref for user code. The
// runtime only ever stores Refs in that field, so the assertion is total;
// nil maps back to NoSender.
func senderRef(s message.Sender) Ref {
	if s == nil {
		return NoSender
	}
	if r, ok := s.(Ref); ok {
		return r
	}
	return NoSender
}

// clampUserPriority keeps caller-chosen priorities out of the reserved
// system lane.
func clampUserPriority(p message.Priority) message.Priority {
	if p >= message.PrioritySystem {
		return message.PrioritySystem - 1
	}
	return p
}

// localRef points at an in-process cell.
type localRef struct {
	cell *Cell
}

func (r *localRef) Path() string { return r.cell.path.String() }
func (r *localRef) Uid() uint64  { return r.cell.uid }

func (r *localRef) Tell(msg interface{}, sender Ref) {
	r.cell.sendUser(message.New(msg, senderOrNil(sender)))
}

func (r *localRef) TellWithPriority(msg interface{}, sender Ref, prio message.Priority) {
	env := message.New(msg, senderOrNil(sender)).WithPriority(clampUserPriority(prio))
	r.cell.sendUser(env)
}

func (r *localRef) Forward(env message.Envelope) {
	if env.IsSystem() {
		env.Priority = message.PrioritySystem - 1
	}
	r.cell.sendUser(env)
}

func (r *localRef) SendSystem(msg SystemMessage) bool {
	return r.cell.sendSystem(msg)
}
