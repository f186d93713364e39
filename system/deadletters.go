package system

import (
	"sync"
	"time"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/message"
)

// DeadLetter is one undeliverable message as recorded by the system's sink.
type DeadLetter struct {
	Message    interface{}
	SenderPath string
	Reason     string
	At         time.Time
}

// deadLetterLog keeps a bounded ring of recent dead letters for
// introspection and tests. Older entries are overwritten.
type deadLetterLog struct {
	mu      sync.Mutex
	entries []DeadLetter
	next    int
	filled  bool
}

const deadLetterLogSize = 1024

func newDeadLetterLog() *deadLetterLog {
	return &deadLetterLog{entries: make([]DeadLetter, deadLetterLogSize)}
}

func (l *deadLetterLog) record(d DeadLetter) {
	l.mu.Lock()
	l.entries[l.next] = d
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.filled = true
	}
	l.mu.Unlock()
}

// recent returns the logged dead letters, oldest first.
func (l *deadLetterLog) recent() []DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.filled {
		out := make([]DeadLetter, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]DeadLetter, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// deadLetterRef is the ref behind ActorSystem.DeadLetters: it accepts every
// message and records it with the reason "dead-letter".
type deadLetterRef struct {
	sys *ActorSystem
}

func (r *deadLetterRef) Path() string { return "/deadLetters" }
func (r *deadLetterRef) Uid() uint64  { return 0 }

func (r *deadLetterRef) Tell(msg interface{}, sender actor.Ref) {
	env := message.New(msg, nil)
	if sender != nil && sender != actor.NoSender {
		env = message.New(msg, sender)
	}
	r.sys.DeadLetter(env, "dead-letter")
}

func (r *deadLetterRef) TellWithPriority(msg interface{}, sender actor.Ref, _ message.Priority) {
	r.Tell(msg, sender)
}

func (r *deadLetterRef) Forward(env message.Envelope) {
	r.sys.DeadLetter(env, "dead-letter")
}

func (r *deadLetterRef) SendSystem(actor.SystemMessage) bool { return false }
