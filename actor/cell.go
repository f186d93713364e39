package actor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actorforge/actorcore/dispatch"
	"github.com/actorforge/actorcore/mailbox"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/supervisor"
)

// CellState is the lifecycle state of a Cell. Transitions are documented in
// the state machine of the cell methods below; the value is read concurrently
// by refs and introspection, and written only from the cell's own execution
// context.
type CellState int32

const (
	Created CellState = iota
	Starting
	Running
	Suspended
	Restarting
	Stopping
	Stopped
)

func (s CellState) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Restarting:
		return "restarting"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Cell is the runtime wrapper around one user actor: it owns the mailbox,
// the behavior stack, the children registry, and the watch sets, and it is
// the only place lifecycle transitions happen.
//
// Single-threading: the dispatcher guarantees at most one worker drains a
// given cell at a time, so all fields below the mutexes are touched only
// from that worker. The children map is the one exception: guardian cells
// accept Spawn calls from arbitrary goroutines, hence childMu.
type Cell struct {
	sys   System
	path  Path
	uid   uint64
	props Props
	mb    mailbox.Mailbox
	disp  *dispatch.Dispatcher
	ref   Ref
	// parent is nil only for the root guardian.
	parent *Cell

	state atomic.Int32

	childMu    sync.Mutex
	children   map[string]*Cell
	childStats map[string]*supervisor.RestartStatistics
	anonSeq    uint64

	// Everything below is cell-context-only.
	instance   Actor
	behaviors  []Behavior
	cellCtx    *Context
	watchers   map[refKey]Ref
	watching   map[refKey]Ref
	currentEnv message.Envelope
	// restartCause is set while a restart waits for children to stop.
	restartPending bool
	restartCause   error
}

// newCell wires a cell to its runtime resources without starting it. The
// caller must register it and post startCell.
func newCell(sys System, path Path, props Props, parent *Cell) *Cell {
	capacity := props.MailboxCapacity
	if capacity == 0 {
		capacity = sys.DefaultMailboxCapacity()
	}
	c := &Cell{
		sys:        sys,
		path:       path,
		uid:        sys.NextUid(),
		props:      props,
		mb:         mailbox.New(capacity),
		disp:       sys.DispatcherByName(props.Dispatcher),
		parent:     parent,
		children:   make(map[string]*Cell),
		childStats: make(map[string]*supervisor.RestartStatistics),
		watchers:   make(map[refKey]Ref),
		watching:   make(map[refKey]Ref),
	}
	c.ref = &localRef{cell: c}
	c.cellCtx = &Context{cell: c}
	return c
}

// NewRootCell creates the root guardian cell for a system. The root applies
// strategy to the /user and /system guardians it spawns; escalation past it
// is terminal (System.EscalateFromRoot).
func NewRootCell(sys System, props Props) *Cell {
	c := newCell(sys, NewPath("/"), props, nil)
	sys.RegisterCell(c)
	c.ref.SendSystem(startCell{})
	return c
}

// Ref returns the cell's handle.
func (c *Cell) Ref() Ref { return c.ref }

// PathValue returns the cell's hierarchical path.
func (c *Cell) PathValue() Path { return c.path }

// Uid returns the incarnation uid.
func (c *Cell) Uid() uint64 { return c.uid }

// State returns the current lifecycle state; safe from any goroutine.
func (c *Cell) State() CellState { return CellState(c.state.Load()) }

// MailboxSize reports the queue depth for introspection.
func (c *Cell) MailboxSize() int { return c.mb.Size() }

func (c *Cell) setState(s CellState) { c.state.Store(int32(s)) }

// Mailbox implements dispatch.Schedulable.
func (c *Cell) Mailbox() mailbox.Mailbox { return c.mb }

// HasMoreWork implements dispatch.Schedulable. A suspended or stopping cell
// reports work only when the system lane has something, so the dispatcher
// does not spin on queued user messages the cell will not touch yet.
func (c *Cell) HasMoreWork() bool {
	switch c.State() {
	case Running:
		return c.mb.Size() > 0
	case Stopped:
		return false
	default:
		return c.mb.SystemPending()
	}
}

// ProcessOne implements dispatch.Schedulable: dequeue and handle exactly one
// envelope, system lane first. Panics from user code are contained here.
func (c *Cell) ProcessOne() bool {
	if c.State() != Running {
		env, ok := c.mb.DequeueSystem()
		if !ok {
			return false
		}
		c.handleSystem(env)
		return true
	}

	env, ok := c.mb.Dequeue()
	if !ok {
		return false
	}
	if env.IsSystem() {
		c.handleSystem(env)
		return true
	}
	// A system message earlier in this slice may have moved us out of
	// Running; queued user messages then wait (Suspended) or die with the
	// cell (Stopping handles them in finalizeStop).
	if c.State() != Running {
		c.sys.DeadLetter(env, "stopped")
		return true
	}
	c.invoke(env)
	return true
}

// sendUser is the enqueue path behind localRef.Tell/Forward.
func (c *Cell) sendUser(env message.Envelope) {
	res, schedule := c.mb.Offer(env)
	switch res {
	case mailbox.Accepted:
		c.sys.Sink().IncMessagesEnqueued(c.disp.Name())
		if schedule {
			c.disp.Schedule(c)
		}
	case mailbox.RejectedFull:
		c.sys.DeadLetter(env, "mailbox-full")
	case mailbox.RejectedClosed:
		c.sys.DeadLetter(env, "stale-ref")
	}
}

// sendSystem enqueues a control message on the reserved lane. It reports
// false once the mailbox is closed, which is how watch-after-stop is
// detected.
func (c *Cell) sendSystem(msg SystemMessage) bool {
	env := message.New(msg, nil).WithPriority(message.PrioritySystem)
	res, schedule := c.mb.Offer(env)
	if res != mailbox.Accepted {
		return false
	}
	if schedule {
		c.disp.Schedule(c)
	}
	return true
}

// invoke runs one user envelope through the top behavior.
func (c *Cell) invoke(env message.Envelope) {
	c.currentEnv = env
	res, cause := c.invokeBehavior(env.Message)
	c.currentEnv = message.Envelope{}

	switch {
	case cause != nil:
		c.sys.Sink().IncActorFailures(c.path.String())
		c.failed(cause, env.Message)
	case res == Unhandled:
		c.sys.DeadLetter(env, "unhandled")
	default:
		c.sys.Sink().IncMessagesProcessed(c.disp.Name())
	}
	c.sys.Sink().SetMailboxSize(c.path.String(), c.mb.Size())
}

// invokeBehavior calls the top of the behavior stack, converting panics into
// an error cause. The dispatcher never sees the panic.
func (c *Cell) invokeBehavior(msg interface{}) (res Result, cause error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				cause = err
			} else {
				cause = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	top := c.behaviors[len(c.behaviors)-1]
	return top(c.cellCtx, msg), nil
}

// failed suspends the cell and reports the failure to the parent, which
// applies its supervision strategy. Failures on the root guardian escalate
// straight out of the actor hierarchy.
func (c *Cell) failed(cause error, msg interface{}) {
	c.setState(Suspended)
	c.sys.Logger().Warn("actor failure",
		"path", c.path.String(),
		"error", cause)
	if c.parent == nil {
		c.sys.EscalateFromRoot(cause)
		return
	}
	c.parent.ref.SendSystem(Failed{Child: c.ref, Cause: cause, Message: msg})
}

// handleSystem dispatches one control envelope.
func (c *Cell) handleSystem(env message.Envelope) {
	switch m := env.Message.(type) {
	case startCell:
		c.start()
	case stopCell:
		c.beginStop()
	case restartCell:
		c.beginRestart(m.cause, m.msg)
	case suspendCell:
		if c.State() == Running {
			c.setState(Suspended)
		}
	case resumeCell:
		if c.State() == Suspended {
			c.setState(Running)
		}
	case watchCell:
		c.watchers[keyOf(m.watcher)] = m.watcher
	case unwatchCell:
		delete(c.watchers, keyOf(m.watcher))
	case childTerminated:
		c.childGone(m.child)
	case Terminated:
		// Only subscribed targets notify the behavior; a notification
		// racing an Unwatch is dropped, keeping watch/unwatch a clean
		// set operation.
		if _, watched := c.watching[keyOf(m.Ref)]; watched {
			delete(c.watching, keyOf(m.Ref))
			c.deliverInternal(m)
		}
	case Failed:
		c.handleChildFailure(m)
	}
}

// deliverInternal hands a runtime notification (Terminated, Failed) to the
// user behavior. Unlike user messages, an Unhandled result here is simply
// dropped rather than dead-lettered.
func (c *Cell) deliverInternal(msg interface{}) {
	if c.instance == nil {
		return
	}
	if _, cause := c.invokeBehavior(msg); cause != nil {
		c.sys.Sink().IncActorFailures(c.path.String())
		c.failed(cause, msg)
	}
}

// start runs the Created -> Running transition. A PreStart error counts as
// the cell's first failure.
func (c *Cell) start() {
	if c.State() != Created {
		return
	}
	c.setState(Starting)
	c.instance = c.props.Producer()
	c.behaviors = []Behavior{c.instance.Receive}

	if ps, ok := c.instance.(PreStarter); ok {
		if cause := c.runHook(func() error { return ps.PreStart(c.cellCtx) }); cause != nil {
			c.failed(cause, nil)
			return
		}
	}
	c.setState(Running)
}

// runHook runs a lifecycle hook with panic containment.
func (c *Cell) runHook(fn func() error) (cause error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				cause = err
			} else {
				cause = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return fn()
}

// beginStop starts the stop sequence: children first, then self.
func (c *Cell) beginStop() {
	st := c.State()
	if st == Stopping || st == Stopped {
		return
	}
	c.setState(Stopping)
	c.restartPending = false

	// Withdraw our subscriptions so peers do not keep dead watcher refs.
	for _, w := range c.watching {
		w.SendSystem(unwatchCell{watcher: c.ref})
	}
	c.watching = make(map[refKey]Ref)

	if !c.stopChildren() {
		return
	}
	c.finalizeStop()
}

// stopChildren posts stopCell to every child, reporting true when there is
// nothing to wait for.
func (c *Cell) stopChildren() bool {
	c.childMu.Lock()
	kids := make([]*Cell, 0, len(c.children))
	for _, child := range c.children {
		kids = append(kids, child)
	}
	c.childMu.Unlock()

	for _, child := range kids {
		child.ref.SendSystem(stopCell{})
	}
	return len(kids) == 0
}

// childGone unlinks a terminated child and unblocks a pending stop or
// restart waiting on it.
func (c *Cell) childGone(child Ref) {
	c.childMu.Lock()
	for name, cc := range c.children {
		if Equals(cc.ref, child) {
			delete(c.children, name)
			delete(c.childStats, name)
			break
		}
	}
	remaining := len(c.children)
	c.childMu.Unlock()

	if remaining > 0 {
		return
	}
	switch {
	case c.State() == Stopping:
		c.finalizeStop()
	case c.restartPending:
		c.restartPending = false
		c.completeRestart(c.restartCause)
	}
}

// finalizeStop runs PostStop, closes and drains the mailbox, publishes
// Terminated, and unlinks from the parent. After this the cell is inert and
// refs to it dead-letter.
func (c *Cell) finalizeStop() {
	if ps, ok := c.instance.(PostStopper); ok {
		if cause := c.runHook(func() error { ps.PostStop(c.cellCtx); return nil }); cause != nil {
			c.sys.Logger().Warn("postStop failure", "path", c.path.String(), "error", cause)
		}
	}

	c.mb.Close()
	for {
		env, ok := c.mb.Dequeue()
		if !ok {
			break
		}
		if env.IsSystem() {
			// A watch that raced the stop still gets its notification.
			if w, isWatch := env.Message.(watchCell); isWatch {
				w.watcher.SendSystem(Terminated{Ref: c.ref})
			}
			continue
		}
		c.sys.DeadLetter(env, "stopped")
	}

	c.setState(Stopped)
	c.instance = nil
	c.behaviors = nil

	for _, w := range c.watchers {
		w.SendSystem(Terminated{Ref: c.ref})
	}
	c.watchers = make(map[refKey]Ref)

	if c.parent != nil {
		c.parent.ref.SendSystem(childTerminated{child: c.ref})
	}
	c.sys.UnregisterCell(c)
}

// beginRestart implements the supervisor's Restart directive: run PreRestart
// on the doomed instance, stop all children, then swap in a fresh instance
// behind the same (path, uid) so outstanding refs stay valid.
func (c *Cell) beginRestart(cause error, msg interface{}) {
	st := c.State()
	if st == Stopping || st == Stopped {
		return
	}
	c.setState(Restarting)

	if pr, ok := c.instance.(PreRestarter); ok {
		if hookErr := c.runHook(func() error { pr.PreRestart(c.cellCtx, cause, msg); return nil }); hookErr != nil {
			c.sys.Logger().Warn("preRestart failure", "path", c.path.String(), "error", hookErr)
		}
	}

	if !c.stopChildren() {
		c.restartPending = true
		c.restartCause = cause
		return
	}
	c.completeRestart(cause)
}

// completeRestart builds the replacement instance and resumes message flow.
// A PostRestart failure feeds straight back into supervision.
func (c *Cell) completeRestart(cause error) {
	c.instance = c.props.Producer()
	c.behaviors = []Behavior{c.instance.Receive}

	if pr, ok := c.instance.(PostRestarter); ok {
		if hookErr := c.runHook(func() error { pr.PostRestart(c.cellCtx, cause); return nil }); hookErr != nil {
			c.failed(hookErr, nil)
			return
		}
	}
	c.setState(Running)
	c.sys.Sink().IncRestarts(c.path.String())
	c.sys.Logger().Info("actor restarted", "path", c.path.String(), "cause", cause)
}

// handleChildFailure applies this cell's strategy to a Failed report. The
// restart budget is tracked per child; exceeding it turns the verdict into
// Escalate. After applying the directive the Failed value is also shown to
// the user behavior so parents can observe supervision outcomes.
func (c *Cell) handleChildFailure(f Failed) {
	child, stats := c.lookupChild(f.Child)
	if child == nil {
		// Stale report from a child already unlinked.
		return
	}

	strat := c.props.strategy()
	directive := strat.Decide(stats, f.Cause, f.Message, time.Now())

	targets := []*Cell{child}
	if strat.Kind == supervisor.AllForOne && directive != supervisor.Escalate {
		targets = c.allChildren()
	}

	switch directive {
	case supervisor.Resume:
		for _, t := range targets {
			t.ref.SendSystem(resumeCell{})
		}
	case supervisor.Restart:
		for _, t := range targets {
			t.ref.SendSystem(restartCell{cause: f.Cause, msg: f.Message})
		}
	case supervisor.Stop:
		for _, t := range targets {
			t.ref.SendSystem(stopCell{})
		}
	case supervisor.Escalate:
		c.sys.Logger().Warn("escalating child failure",
			"path", c.path.String(),
			"child", f.Child.Path(),
			"error", f.Cause)
		c.deliverInternal(f)
		c.failed(f.Cause, f.Message)
		return
	}

	c.deliverInternal(f)
}

func (c *Cell) lookupChild(ref Ref) (*Cell, *supervisor.RestartStatistics) {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	for name, cc := range c.children {
		if Equals(cc.ref, ref) {
			return cc, c.childStats[name]
		}
	}
	return nil, nil
}

func (c *Cell) allChildren() []*Cell {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	kids := make([]*Cell, 0, len(c.children))
	for _, cc := range c.children {
		kids = append(kids, cc)
	}
	return kids
}

// Spawn installs a child cell under this one and starts it. Safe to call
// from outside the cell's context: guardian cells take spawns from any
// goroutine via the system's public API.
func (c *Cell) Spawn(props Props, name string) (Ref, error) {
	if c.sys.Terminating() {
		return nil, ErrSystemShuttingDown
	}
	if st := c.State(); st == Stopping || st == Stopped {
		return nil, ErrSystemShuttingDown
	}
	if props.Producer == nil {
		return nil, fmt.Errorf("actor: props without a producer")
	}

	c.childMu.Lock()
	if name == "" {
		name = anonName(c.anonSeq)
		c.anonSeq++
	}
	if _, exists := c.children[name]; exists {
		c.childMu.Unlock()
		return nil, fmt.Errorf("%w: %q under %s", ErrNameInUse, name, c.path.String())
	}
	child := newCell(c.sys, c.path.Child(name), props, c)
	c.children[name] = child
	c.childStats[name] = supervisor.NewRestartStatistics()
	c.childMu.Unlock()

	c.sys.RegisterCell(child)
	child.ref.SendSystem(startCell{})
	return child.ref, nil
}

// Child resolves a direct child ref by name.
func (c *Cell) Child(name string) (Ref, bool) {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	child, ok := c.children[name]
	if !ok {
		return nil, false
	}
	return child.ref, true
}

// ChildNames lists the current children, for introspection.
func (c *Cell) ChildNames() []string {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	names := make([]string, 0, len(c.children))
	for name := range c.children {
		names = append(names, name)
	}
	return names
}

// anonName generates the $a, $b, ... $z, $aa, ... sequence for unnamed
// children.
func anonName(seq uint64) string {
	buf := []byte{}
	for {
		buf = append([]byte{byte('a' + seq%26)}, buf...)
		if seq < 26 {
			break
		}
		seq = seq/26 - 1
	}
	return "$" + string(buf)
}
