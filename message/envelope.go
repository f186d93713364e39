// Package message defines the uniform envelope that wraps every value moving
// through the actor runtime. Mailboxes, dispatchers, and routers all operate
// on Envelope rather than on raw user payloads so that sender identity,
// priority, and correlation metadata survive the trip without the user actor
// needing to know about them.
package message

import "time"

// Priority is a small signed integer lane selector. Larger values are
// serviced earlier by a priority-aware Mailbox. The zero value, PriorityUser,
// is the default for ordinary tells.
type Priority int

const (
	// PriorityUser is the default priority for user messages.
	PriorityUser Priority = 0

	// PriorityHigh is available to callers that want to jump the user
	// queue without using the reserved system lane.
	PriorityHigh Priority = 10

	// PrioritySystem is reserved for lifecycle control messages (start,
	// stop, restart, suspend, resume, watch, unwatch, Terminated, Failed).
	// Mailbox implementations MUST dequeue PrioritySystem envelopes ahead
	// of every other lane and MUST NOT drop them for capacity reasons.
	PrioritySystem Priority = 1 << 30
)

// Sender is the minimal identity a message carries for reply and dead-letter
// bookkeeping. Concrete ActorRef implementations satisfy this.
type Sender interface {
	Path() string
	Uid() uint64
}

// Envelope is the uniform wrapper around a user message as it travels from
// ActorRef.Tell/Ask through a Mailbox to an ActorCell's behavior stack.
type Envelope struct {
	// Message is the user-supplied payload, or a system control value
	// (see the actor package's control message types) when Priority is
	// PrioritySystem.
	Message interface{}

	// Sender is who sent this message, used as the implicit reply
	// target. Nil means the framework's NoSender sentinel.
	Sender Sender

	// Priority selects the dequeue lane. See the Priority constants.
	Priority Priority

	// EnqueueTime records when the envelope was built (New stamps it);
	// the runtime itself does not read it.
	EnqueueTime time.Time

	// CorrelationID links requests to replies across ask/reply and
	// cluster hops. Optional; zero value means unset.
	CorrelationID string

	// RouteKey is an optional hint used by routers (e.g. consistent-hash
	// routing) to pick a routee independent of the message's own shape.
	RouteKey string
}

// New builds an Envelope with PriorityUser and the current time as its
// enqueue timestamp. Use the With* helpers to customize before offering it
// to a mailbox.
func New(msg interface{}, sender Sender) Envelope {
	return Envelope{
		Message:     msg,
		Sender:      sender,
		Priority:    PriorityUser,
		EnqueueTime: time.Now(),
	}
}

// WithPriority returns a copy of the envelope with a different priority.
func (e Envelope) WithPriority(p Priority) Envelope {
	e.Priority = p
	return e
}

// WithCorrelationID returns a copy of the envelope carrying a correlation id.
func (e Envelope) WithCorrelationID(id string) Envelope {
	e.CorrelationID = id
	return e
}

// WithRouteKey returns a copy of the envelope carrying an explicit route key.
func (e Envelope) WithRouteKey(key string) Envelope {
	e.RouteKey = key
	return e
}

// IsSystem reports whether this envelope belongs to the reserved system
// lane and must never be dropped for capacity reasons.
func (e Envelope) IsSystem() bool {
	return e.Priority >= PrioritySystem
}
