// Package dispatch implements the worker-pool scheduler that drains actor
// mailboxes. A Dispatcher never knows about actor semantics (behaviors,
// supervision, children); it only knows how to run a bounded quantum of work
// against anything that satisfies Schedulable, which keeps this package
// reusable for both the default user dispatcher and the distinguished system
// dispatcher that keeps lifecycle traffic flowing.
package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/actorforge/actorcore/mailbox"
)

// DefaultThroughput is the default number of messages a worker drains from a
// single mailbox before yielding it back to the work queue, so that one busy
// actor cannot starve its siblings on the same dispatcher.
const DefaultThroughput = 5

// Schedulable is anything a Dispatcher can run a quantum of work against. An
// ActorCell is the only production implementation; tests may supply fakes.
type Schedulable interface {
	// Mailbox returns the mailbox this schedulable drains from.
	Mailbox() mailbox.Mailbox

	// ProcessOne dequeues and handles exactly one envelope. It must never
	// let a panic escape; implementations are responsible for recovering
	// and routing the failure to their supervisor. ProcessOne returns
	// false if nothing was available to process right now (the mailbox
	// is empty, or a suspended cell has no pending system envelope).
	ProcessOne() bool

	// HasMoreWork reports whether anything is currently processable.
	// This is deliberately distinct from Mailbox().Size() > 0: a
	// suspended cell may have a non-empty mailbox (queued user
	// envelopes) yet report false here, so the dispatcher stops polling
	// it instead of busy-spinning until the cell resumes.
	HasMoreWork() bool
}

// Config configures a Dispatcher's parallelism and fairness behavior.
type Config struct {
	// Name identifies the dispatcher for diagnostics and for pinning
	// cells to it by name.
	Name string

	// Parallelism is the number of worker goroutines draining the work
	// queue concurrently.
	Parallelism int

	// Throughput is the quantum: the max number of messages drained from
	// one mailbox per scheduling turn before it's yielded back to the
	// queue. Zero means DefaultThroughput.
	Throughput int
}

// Dispatcher is a named worker pool that fairly drains a set of active
// mailboxes. Exactly one worker ever processes a given Schedulable's mailbox
// concurrently: Schedule only enqueues a Schedulable when its mailbox's
// running flag transitions idle->active, so the same Schedulable is never
// present in the work queue twice at once.
type Dispatcher struct {
	cfg     Config
	workCh  chan Schedulable
	closeCh chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
}

// New constructs a Dispatcher. Call Start before scheduling work, and Stop to
// tear down its worker goroutines.
func New(cfg Config) *Dispatcher {
	if cfg.Throughput <= 0 {
		cfg.Throughput = DefaultThroughput
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Dispatcher{
		cfg:     cfg,
		workCh:  make(chan Schedulable, 1024),
		closeCh: make(chan struct{}),
	}
}

// Name returns the dispatcher's configured name.
func (d *Dispatcher) Name() string { return d.cfg.Name }

// Start launches the worker pool. Safe to call once; subsequent calls are a
// no-op.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < d.cfg.Parallelism; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains no further scheduling requests and waits for in-flight workers
// to finish their current quantum.
func (d *Dispatcher) Stop() {
	if !d.started.CompareAndSwap(true, false) {
		return
	}
	close(d.closeCh)
	d.wg.Wait()
}

// Schedule enqueues s for execution. Callers should only invoke this when a
// mailbox offer reported scheduleRequest=true, or when re-enqueuing a
// mailbox that still has work after a quantum.
func (d *Dispatcher) Schedule(s Schedulable) {
	select {
	case d.workCh <- s:
	case <-d.closeCh:
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.closeCh:
			return
		case s := <-d.workCh:
			d.drain(s)
		}
	}
}

// drain runs up to the configured throughput quantum against s, then decides
// whether to reschedule it or mark its mailbox idle. System-priority
// envelopes are handled by ProcessOne ahead of user envelopes regardless of
// quantum position, since Mailbox.Dequeue always yields the system lane
// first; this loop simply bounds how many total envelopes one turn drains.
func (d *Dispatcher) drain(s Schedulable) {
	mb := s.Mailbox()

	for i := 0; i < d.cfg.Throughput; i++ {
		if !s.ProcessOne() {
			break
		}
	}

	if s.HasMoreWork() {
		// Still work left after the quantum: yield the mailbox back to
		// the queue so other schedulables get a turn, then pick this
		// one back up later.
		d.Schedule(s)
		return
	}

	mb.SetIdle()

	// A racing Offer may have set the flag back to true (and, since it
	// lost the CAS race on SetActive, believed someone else would
	// reschedule) between our last ProcessOne and SetIdle above. Check
	// once more and reclaim scheduling duty if so.
	if s.HasMoreWork() && mb.SetActive() {
		d.Schedule(s)
	}
}
