package router

import (
	"strconv"
	"sync"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/supervisor"
)

// Spawner is the slice of the actor system the router needs for its
// management actors. *system.ActorSystem satisfies it.
type Spawner interface {
	SpawnInternal(props actor.Props, name string) (actor.Ref, error)
}

// Router is an actor.Ref that fans out to routees by strategy. Routees may
// be externally supplied (NewGroup) or spawned and supervised by the router
// (NewPool). Each routee is an independent child with respect to
// supervision: the pool parent applies a OneForOne strategy per routee, the
// router never restarts the whole set as a unit.
type Router struct {
	sys      actor.System
	strategy Strategy
	path     string
	uid      uint64

	mu      sync.Mutex
	routees []actor.Ref
}

// NewGroup builds a router over externally supplied routees. The router
// watches each routee through a management actor under /system and prunes
// terminated ones.
func NewGroup(sys actor.System, sp Spawner, strategy Strategy, routees []actor.Ref) (*Router, error) {
	r := &Router{
		sys:      sys,
		strategy: strategy,
		uid:      sys.NextUid(),
	}
	r.path = "/router/" + strconv.FormatUint(r.uid, 10)
	r.setRoutees(routees)

	_, err := sp.SpawnInternal(actor.Props{
		Producer: func() actor.Actor { return &routeeWatcher{router: r, initial: routees} },
	}, "router-watch-"+strconv.FormatUint(r.uid, 10))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NewPool builds a router that spawns size routees from routeeProps under a
// management parent, which supervises them OneForOne and prunes any that
// stop permanently.
func NewPool(sys actor.System, sp Spawner, strategy Strategy, routeeProps actor.Props, size int) (*Router, error) {
	r := &Router{
		sys:      sys,
		strategy: strategy,
		uid:      sys.NextUid(),
	}
	r.path = "/router/" + strconv.FormatUint(r.uid, 10)

	strat := supervisor.DefaultStrategy()
	_, err := sp.SpawnInternal(actor.Props{
		Producer: func() actor.Actor {
			return &poolParent{router: r, routeeProps: routeeProps, size: size}
		},
		Strategy: &strat,
	}, "router-pool-"+strconv.FormatUint(r.uid, 10))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Routees snapshots the current routee set.
func (r *Router) Routees() []actor.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Ref, len(r.routees))
	copy(out, r.routees)
	return out
}

// AddRoutee registers a routee. Idempotent by ref identity.
func (r *Router) AddRoutee(ref actor.Ref) {
	r.mu.Lock()
	for _, existing := range r.routees {
		if actor.Equals(existing, ref) {
			r.mu.Unlock()
			return
		}
	}
	r.routees = append(r.routees, ref)
	snapshot := append([]actor.Ref(nil), r.routees...)
	r.mu.Unlock()
	r.strategy.RouteesChanged(snapshot)
}

// RemoveRoutee deregisters a routee, typically on its termination.
func (r *Router) RemoveRoutee(ref actor.Ref) {
	r.mu.Lock()
	kept := r.routees[:0]
	for _, existing := range r.routees {
		if !actor.Equals(existing, ref) {
			kept = append(kept, existing)
		}
	}
	r.routees = kept
	snapshot := append([]actor.Ref(nil), r.routees...)
	r.mu.Unlock()
	r.strategy.RouteesChanged(snapshot)
}

func (r *Router) setRoutees(routees []actor.Ref) {
	r.mu.Lock()
	r.routees = append([]actor.Ref(nil), routees...)
	snapshot := append([]actor.Ref(nil), r.routees...)
	r.mu.Unlock()
	r.strategy.RouteesChanged(snapshot)
}

// --- actor.Ref -----------------------------------------------------------

func (r *Router) Path() string { return r.path }
func (r *Router) Uid() uint64  { return r.uid }

func (r *Router) Tell(msg interface{}, sender actor.Ref) {
	r.route(message.New(msg, senderOf(sender)))
}

func (r *Router) TellWithPriority(msg interface{}, sender actor.Ref, prio message.Priority) {
	r.route(message.New(msg, senderOf(sender)).WithPriority(prio))
}

func (r *Router) Forward(env message.Envelope) {
	r.route(env)
}

// SendSystem is not routed: a router has no cell of its own to control.
func (r *Router) SendSystem(actor.SystemMessage) bool { return false }

func (r *Router) route(env message.Envelope) {
	r.mu.Lock()
	routees := r.routees
	targets := r.strategy.Route(env, routees)
	r.mu.Unlock()

	if len(targets) == 0 {
		r.sys.DeadLetter(env, "no-routees")
		return
	}
	for _, t := range targets {
		t.Forward(env)
	}
}

func senderOf(r actor.Ref) message.Sender {
	if r == nil || r == actor.NoSender {
		return nil
	}
	return r
}

// routeeWatcher watches externally supplied routees and prunes terminated
// ones from the router.
type routeeWatcher struct {
	router  *Router
	initial []actor.Ref
}

func (w *routeeWatcher) PreStart(ctx *actor.Context) error {
	for _, r := range w.initial {
		ctx.Watch(r)
	}
	return nil
}

func (w *routeeWatcher) Receive(_ *actor.Context, msg interface{}) actor.Result {
	if t, ok := msg.(actor.Terminated); ok {
		w.router.RemoveRoutee(t.Ref)
		return actor.Handled
	}
	return actor.Unhandled
}

// poolParent owns the managed routees: it spawns them at start, watches
// them, and prunes permanently stopped ones. Supervision of a failing
// routee follows this actor's OneForOne strategy, so a crash restarts just
// that routee and, because restarts preserve the ref, the router's set
// stays valid.
type poolParent struct {
	router      *Router
	routeeProps actor.Props
	size        int
}

func (p *poolParent) PreStart(ctx *actor.Context) error {
	for i := 0; i < p.size; i++ {
		ref, err := ctx.Spawn(p.routeeProps, "routee-"+strconv.Itoa(i))
		if err != nil {
			return err
		}
		ctx.Watch(ref)
		p.router.AddRoutee(ref)
	}
	return nil
}

func (p *poolParent) Receive(_ *actor.Context, msg interface{}) actor.Result {
	if t, ok := msg.(actor.Terminated); ok {
		p.router.RemoveRoutee(t.Ref)
		return actor.Handled
	}
	return actor.Unhandled
}
