// Package mailbox implements the bounded, priority-aware FIFO queue that sits
// between an ActorRef and the dispatcher worker that drains it. Exactly one
// dispatcher goroutine may drain a given Mailbox at a time (single-consumer);
// any number of goroutines may offer to it concurrently (multi-producer).
package mailbox

import (
	"sync"
	"sync/atomic"

	"github.com/actorforge/actorcore/message"
)

// OfferResult is the outcome of offering an envelope to a Mailbox.
type OfferResult int

const (
	// Accepted means the envelope was queued and will eventually be
	// handed to the dispatcher.
	Accepted OfferResult = iota
	// RejectedFull means the user-priority lanes were at capacity; the
	// caller's send path must route the envelope to dead letters.
	RejectedFull
	// RejectedClosed means the mailbox has already been closed.
	RejectedClosed
)

func (r OfferResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedFull:
		return "full"
	case RejectedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mailbox is the single-consumer, multi-producer queue an ActorCell drains.
// Implementations must guarantee per-sender FIFO: two envelopes from the same
// sender are dequeued in the order they were accepted.
type Mailbox interface {
	// Offer attempts to enqueue an envelope. System-priority envelopes
	// (message.PrioritySystem) always succeed unless the mailbox is
	// closed; they bypass the capacity check entirely.
	//
	// scheduleRequest is true exactly once per idle->active transition:
	// callers should only schedule the mailbox with a dispatcher when it
	// is true, preventing duplicate scheduling under concurrent offers.
	Offer(env message.Envelope) (result OfferResult, scheduleRequest bool)

	// Dequeue removes and returns the next envelope in priority order
	// (system lane first, then high, then user-default), or ok=false if
	// the mailbox is currently empty. Non-blocking; called only by the
	// dispatcher worker currently owning this mailbox.
	Dequeue() (env message.Envelope, ok bool)

	// DequeueSystem removes and returns only the next system-lane
	// envelope, ignoring user lanes entirely. Used while a cell is
	// suspended: it must keep making progress on lifecycle control
	// messages without touching user messages.
	DequeueSystem() (env message.Envelope, ok bool)

	// SystemPending reports whether the system lane has queued
	// envelopes.
	SystemPending() bool

	// Size reports the number of envelopes currently queued across all
	// lanes, including the unbounded system lane.
	Size() int

	// Close marks the mailbox closed. Subsequent Offer calls return
	// RejectedClosed. Already-queued envelopes remain until drained.
	Close()

	// Closed reports whether Close has been called.
	Closed() bool

	// SetActive attempts to transition the running flag from false to
	// true via compare-and-swap, returning true if this call performed
	// the transition (and therefore owns the obligation to (re)schedule
	// the mailbox with a dispatcher).
	SetActive() bool

	// SetIdle clears the running flag. Callers (the dispatcher) must call
	// this only after confirming the mailbox is empty; if a racing Offer
	// observes the still-active flag and skips rescheduling, SetIdle's
	// caller is responsible for checking Size() again after clearing and
	// rescheduling if it raced (see dispatch.Dispatcher.drain).
	SetIdle()
}

// bounded is the default Mailbox implementation: one unbounded system lane
// plus two capacity-bounded user lanes (high priority and default).
type bounded struct {
	mu       sync.Mutex
	sysQ     []message.Envelope
	hiQ      []message.Envelope
	loQ      []message.Envelope
	capacity int
	closed   bool

	running atomic.Bool
}

// New constructs a Mailbox with the given capacity shared by the high and
// default user-priority lanes. The system lane is always unbounded. A
// capacity of 0 or less means unbounded user lanes too.
func New(capacity int) Mailbox {
	return &bounded{capacity: capacity}
}

func (b *bounded) Offer(env message.Envelope) (OfferResult, bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return RejectedClosed, false
	}

	switch {
	case env.IsSystem():
		b.sysQ = append(b.sysQ, env)
	case env.Priority > message.PriorityUser:
		if b.capacity > 0 && len(b.hiQ)+len(b.loQ) >= b.capacity {
			b.mu.Unlock()
			return RejectedFull, false
		}
		b.hiQ = append(b.hiQ, env)
	default:
		if b.capacity > 0 && len(b.hiQ)+len(b.loQ) >= b.capacity {
			b.mu.Unlock()
			return RejectedFull, false
		}
		b.loQ = append(b.loQ, env)
	}
	b.mu.Unlock()

	return Accepted, b.SetActive()
}

func (b *bounded) Dequeue() (message.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sysQ) > 0 {
		env := b.sysQ[0]
		b.sysQ = b.sysQ[1:]
		return env, true
	}
	if len(b.hiQ) > 0 {
		env := b.hiQ[0]
		b.hiQ = b.hiQ[1:]
		return env, true
	}
	if len(b.loQ) > 0 {
		env := b.loQ[0]
		b.loQ = b.loQ[1:]
		return env, true
	}
	return message.Envelope{}, false
}

func (b *bounded) DequeueSystem() (message.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sysQ) > 0 {
		env := b.sysQ[0]
		b.sysQ = b.sysQ[1:]
		return env, true
	}
	return message.Envelope{}, false
}

func (b *bounded) SystemPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sysQ) > 0
}

func (b *bounded) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sysQ) + len(b.hiQ) + len(b.loQ)
}

func (b *bounded) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *bounded) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *bounded) SetActive() bool {
	return b.running.CompareAndSwap(false, true)
}

func (b *bounded) SetIdle() {
	b.running.Store(false)
}
