package actor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/actorforge/actorcore/message"
)

// Future is the one-shot result of an Ask. It completes exactly once: with
// the first reply, with ErrAskTimeout, or with ErrAskCancelled, whichever
// wins the race. Completion is idempotent; later replies go to dead letters.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	value     interface{}
	err       error
	completed bool
	timer     *time.Timer
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete attempts to settle the future, reporting whether this call won.
func (f *Future) complete(value interface{}, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value = value
	f.err = err
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	close(f.done)
	return true
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the future settles or ctx is cancelled. A context
// cancellation does not settle the future; use Cancel for that.
func (f *Future) Result(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel settles the future with ErrAskCancelled, reporting whether this
// call performed the cancellation. Idempotent; a future that already has a
// reply or timed out reports false. The target may still process the
// original message.
func (f *Future) Cancel() bool {
	return f.complete(nil, ErrAskCancelled)
}

// askRef is the transient reply target an Ask synthesizes. The first message
// it receives settles the future; everything after that dead-letters with
// reason "ask-expired".
type askRef struct {
	sys    System
	path   string
	uid    uint64
	target string
	fut    *Future
}

func (a *askRef) Path() string { return a.path }
func (a *askRef) Uid() uint64  { return a.uid }

func (a *askRef) Tell(msg interface{}, sender Ref) {
	if !a.fut.complete(msg, nil) {
		a.sys.DeadLetter(message.New(msg, senderOrNil(sender)), "ask-expired")
	}
}

func (a *askRef) TellWithPriority(msg interface{}, sender Ref, _ message.Priority) {
	a.Tell(msg, sender)
}

func (a *askRef) Forward(env message.Envelope) {
	if !a.fut.complete(env.Message, nil) {
		a.sys.DeadLetter(env, "ask-expired")
	}
}

func (a *askRef) SendSystem(SystemMessage) bool { return false }

// Ask sends msg to target with a synthesized one-shot reply ref as sender
// and returns the future for the reply. A timeout of zero or less means no
// deadline (callers normally pass the system's configured default). The
// timeout settles the future with ErrAskTimeout and bumps the ask-timeout
// counter; a reply arriving after that is dead-lettered.
func Ask(sys System, target Ref, msg interface{}, timeout time.Duration) *Future {
	fut := newFuture()
	ar := &askRef{
		sys:    sys,
		path:   "/temp/ask-" + strconv.FormatUint(sys.NextUid(), 10),
		uid:    sys.NextUid(),
		target: target.Path(),
		fut:    fut,
	}
	if timeout > 0 {
		fut.mu.Lock()
		fut.timer = time.AfterFunc(timeout, func() {
			if fut.complete(nil, ErrAskTimeout) {
				sys.Sink().IncAskTimeouts(ar.target)
			}
		})
		fut.mu.Unlock()
	}
	target.Tell(msg, ar)
	return fut
}

// PipeTo forwards the future's outcome to target as a message once it
// settles: the reply value on success, or the error value on failure. This
// is the safe way for an actor to consume a future: the result arrives
// through the mailbox on the actor's own execution context instead of a
// foreign callback goroutine.
func PipeTo(fut *Future, target Ref, sender Ref) {
	go func() {
		<-fut.Done()
		value, err := fut.Result(context.Background())
		if err != nil {
			target.Tell(err, sender)
			return
		}
		target.Tell(value, sender)
	}()
}
