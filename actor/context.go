package actor

import "github.com/actorforge/actorcore/message"

// Context is the view of the runtime a behavior gets while processing one
// message. It is only valid for the duration of the Receive call that got
// it; capturing it in a goroutine and calling methods later races with the
// cell (use PipeTo for that pattern instead).
type Context struct {
	cell *Cell
}

// Self returns the ref of the actor currently processing.
func (ctx *Context) Self() Ref { return ctx.cell.ref }

// Sender returns the ref of whoever sent the current message, or NoSender.
func (ctx *Context) Sender() Ref { return senderRef(ctx.cell.currentEnv.Sender) }

// Envelope exposes the full current envelope, including priority,
// correlation id, and route key.
func (ctx *Context) Envelope() message.Envelope { return ctx.cell.currentEnv }

// System returns the owning actor system's runtime surface.
func (ctx *Context) System() System { return ctx.cell.sys }

// Reply tells the current sender, with self as the reply target. A reply to
// NoSender is silently discarded.
func (ctx *Context) Reply(msg interface{}) {
	ctx.Sender().Tell(msg, ctx.cell.ref)
}

// Forward re-sends the current envelope to target, preserving the original
// sender so replies skip this actor.
func (ctx *Context) Forward(target Ref) {
	target.Forward(ctx.cell.currentEnv)
}

// Spawn creates a child under this actor. This actor becomes the child's
// supervisor; its Props.Strategy decides what happens when the child fails.
// An empty name allocates an anonymous $a, $b, ... name.
func (ctx *Context) Spawn(props Props, name string) (Ref, error) {
	return ctx.cell.Spawn(props, name)
}

// Child resolves a direct child by name.
func (ctx *Context) Child(name string) (Ref, bool) { return ctx.cell.Child(name) }

// Children lists the names of this actor's current children.
func (ctx *Context) Children() []string { return ctx.cell.ChildNames() }

// StopSelf begins this actor's stop sequence after the current message
// completes.
func (ctx *Context) StopSelf() {
	ctx.cell.ref.SendSystem(stopCell{})
}

// Stop asks an arbitrary actor to stop. Equivalent to the system-level stop
// operation; the target's parent observes the termination as usual.
func (ctx *Context) Stop(ref Ref) {
	ref.SendSystem(stopCell{})
}

// Watch subscribes this actor to target's termination: a Terminated{target}
// message is delivered exactly once when (or if) it stops. Watching an
// already-stopped ref delivers Terminated immediately. Watch is a set
// operation: watching twice equals watching once.
func (ctx *Context) Watch(target Ref) {
	c := ctx.cell
	c.watching[keyOf(target)] = target
	if !target.SendSystem(watchCell{watcher: c.ref}) {
		// Target is already gone; deliver the notification ourselves.
		c.ref.SendSystem(Terminated{Ref: target})
	}
}

// Unwatch removes a termination subscription. Idempotent.
func (ctx *Context) Unwatch(target Ref) {
	c := ctx.cell
	delete(c.watching, keyOf(target))
	target.SendSystem(unwatchCell{watcher: c.ref})
}

// Become pushes a replacement behavior; subsequent messages hit it instead
// of the actor's Receive until Unbecome pops it.
func (ctx *Context) Become(b Behavior) {
	ctx.cell.behaviors = append(ctx.cell.behaviors, b)
}

// Unbecome pops the top behavior. The bottom of the stack (the actor's own
// Receive) is never popped.
func (ctx *Context) Unbecome() {
	if len(ctx.cell.behaviors) > 1 {
		ctx.cell.behaviors = ctx.cell.behaviors[:len(ctx.cell.behaviors)-1]
	}
}
