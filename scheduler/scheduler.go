// Package scheduler delivers one-shot and fixed-rate timer messages to actor
// refs. A single worker goroutine pops due timers off a min-heap and tells
// the target ref; the scheduler never invokes user code directly, it only
// enqueues envelopes, so a slow handler can delay but never block the timer
// loop.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/actorforge/actorcore/actor"
)

// DefaultTick is the scheduling granularity when the config leaves it zero.
// Fires are best-effort: a timer due between ticks fires on the next tick.
const DefaultTick = 10 * time.Millisecond

// Cancellable is the handle returned by the schedule operations.
type Cancellable interface {
	// Cancel stops future fires. Idempotent: the first call on a timer
	// that has not yet fully fired returns true; calling again, or
	// calling on a one-shot timer that already fired, returns false.
	Cancel() bool

	// Cancelled reports whether Cancel has succeeded on this handle.
	Cancelled() bool
}

// timer is one scheduled delivery. period == 0 means one-shot.
type timer struct {
	fireAt    time.Time
	period    time.Duration
	target    actor.Ref
	msg       interface{}
	sender    actor.Ref
	heapIndex int

	mu        sync.Mutex
	cancelled bool
	fired     bool // one-shot only: set after delivery
}

func (t *timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

func (t *timer) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *timer) isDead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled || t.fired
}

func (t *timer) markFired() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
}

// timerHeap orders timers by next fire time.
type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].heapIndex = i; h[j].heapIndex = j }
func (h *timerHeap) Push(x interface{}) { t := x.(*timer); t.heapIndex = len(*h); *h = append(*h, t) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler is the system-wide timer service. Construct with New, Start it,
// and Stop it during system shutdown; Stop cancels every outstanding timer.
type Scheduler struct {
	tick time.Duration

	mu      sync.Mutex
	timers  timerHeap
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New constructs a Scheduler with the given tick granularity; zero or
// negative means DefaultTick.
func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		tick: tick,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the timer worker. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop cancels all outstanding timers and terminates the worker. Subsequent
// schedule calls return an already-cancelled handle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, t := range s.timers {
		t.Cancel()
	}
	s.timers = nil
	started := s.started
	s.mu.Unlock()

	close(s.done)
	if started {
		s.wg.Wait()
	}
}

// ScheduleOnce delivers msg to target once, no sooner than delay from now.
func (s *Scheduler) ScheduleOnce(delay time.Duration, target actor.Ref, msg interface{}) Cancellable {
	return s.schedule(delay, 0, target, msg, actor.NoSender)
}

// ScheduleAtFixedRate delivers msg to target every interval, starting after
// initialDelay. When deliveries fall behind (a blocked mailbox, a slow
// handler) missed fires coalesce: the next fire is rebased to now+interval
// instead of replaying the backlog.
func (s *Scheduler) ScheduleAtFixedRate(initialDelay, interval time.Duration, target actor.Ref, msg interface{}) Cancellable {
	if interval <= 0 {
		interval = s.tick
	}
	return s.schedule(initialDelay, interval, target, msg, actor.NoSender)
}

func (s *Scheduler) schedule(delay, period time.Duration, target actor.Ref, msg interface{}, sender actor.Ref) Cancellable {
	t := &timer{
		fireAt: time.Now().Add(delay),
		period: period,
		target: target,
		msg:    msg,
		sender: sender,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		t.Cancel()
		return t
	}
	heap.Push(&s.timers, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t
}

// loop pops due timers each tick. Delivery happens outside the lock so a
// contended mailbox offer cannot stall schedule/cancel callers.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.fireDue(time.Now())
	}
}

func (s *Scheduler) fireDue(now time.Time) {
	for {
		s.mu.Lock()
		if s.stopped || len(s.timers) == 0 || s.timers[0].fireAt.After(now) {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.timers).(*timer)

		if t.isDead() {
			s.mu.Unlock()
			continue
		}

		if t.period > 0 {
			// Coalesce missed fires: one delivery now, the next a
			// full period out, regardless of how far behind the
			// deadline drifted.
			next := t.fireAt.Add(t.period)
			if !next.After(now) {
				next = now.Add(t.period)
			}
			t.fireAt = next
			heap.Push(&s.timers, t)
		} else {
			t.markFired()
		}
		s.mu.Unlock()

		t.target.Tell(t.msg, t.sender)
	}
}
