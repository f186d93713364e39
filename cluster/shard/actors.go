package shard

import (
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/scheduler"
)

// regionActor is the root of one region's local actor tree. It owns the
// shard actors for locally allocated shards, routes Deliver envelopes, and
// drives the drain side of a rebalance. Every routing decision re-reads the
// region's current table, so a Deliver that raced a rebalance to the old
// owner is transparently forwarded to the new one rather than surfacing any
// not-ready condition to the sender.
type regionActor struct {
	region *Region
	shards map[ID]actor.Ref
}

func newRegionActor(r *Region) *regionActor {
	return &regionActor{region: r, shards: make(map[ID]actor.Ref)}
}

func (a *regionActor) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	switch m := msg.(type) {
	case Deliver:
		a.routeDeliver(ctx, m)
		return actor.Handled

	case rebalance:
		a.applyRebalance(ctx, m.next)
		return actor.Handled

	case actor.Terminated:
		for s, ref := range a.shards {
			if actor.Equals(ref, m.Ref) {
				delete(a.shards, s)
				break
			}
		}
		return actor.Handled
	}
	return actor.Unhandled
}

func (a *regionActor) routeDeliver(ctx *actor.Context, d Deliver) {
	r := a.region
	s := Of(d.EntityID, r.cfg.ShardCount)
	owner := r.table.Load().Owner(s)

	if owner != r.self && owner != "" {
		r.routeRemote(ctx.Envelope(), owner)
		return
	}

	shardRef, ok := a.shards[s]
	if !ok {
		spawned, err := ctx.Spawn(actor.Props{
			Producer: func() actor.Actor { return newShardActor(r, s) },
		}, strconv.Itoa(int(s)))
		if err != nil {
			// A draining shard actor still winding down under this
			// name; reuse it, its draining behavior re-homes the
			// message correctly.
			existing, found := ctx.Child(strconv.Itoa(int(s)))
			if !found {
				r.sys.DeadLetter(ctx.Envelope(), "stopped")
				return
			}
			spawned = existing
		}
		ctx.Watch(spawned)
		a.shards[s] = spawned
		shardRef = spawned
	}
	shardRef.Forward(ctx.Envelope())
}

func (a *regionActor) applyRebalance(ctx *actor.Context, next *Table) {
	r := a.region
	for s, ref := range a.shards {
		if next.Owner(s) == r.self {
			continue
		}
		// Lost shard: the actor drains its backlog (forwarding to the
		// new owner) and then stops itself; Terminated unlinks it.
		ref.Tell(drainShard{}, ctx.Self())
		delete(a.shards, s)
	}
	r.sys.Sink().IncShardRebalance(r.cfg.TypeName)
	r.sys.Logger().Info("shard rebalance applied",
		"region", r.cfg.TypeName,
		"version", next.Version)
}

// shardActor owns the live entity actors of one shard: lazy spawn on first
// delivery, LRU cap and idle-timeout passivation, and the draining behavior
// used when ownership moves away.
type shardActor struct {
	region *Region
	shard  ID

	entities   map[string]actor.Ref
	lastActive map[string]time.Time
	// lruCap evicts the least recently delivered entity id beyond the
	// configured cap; eviction passivates the entity.
	lruCap *lru.Cache[string, struct{}]

	sweep scheduler.Cancellable
}

func newShardActor(r *Region, s ID) *shardActor {
	return &shardActor{
		region:     r,
		shard:      s,
		entities:   make(map[string]actor.Ref),
		lastActive: make(map[string]time.Time),
	}
}

func (a *shardActor) PreStart(ctx *actor.Context) error {
	p := a.region.cfg.Passivation
	if p.MaxEntities > 0 {
		cache, err := lru.NewWithEvict(p.MaxEntities, func(entityID string, _ struct{}) {
			a.passivate(ctx, entityID)
		})
		if err != nil {
			return err
		}
		a.lruCap = cache
	}
	if p.IdleTimeout > 0 {
		a.sweep = a.region.sys.Scheduler().ScheduleAtFixedRate(
			p.IdleTimeout, p.IdleTimeout/2, ctx.Self(), idleSweep{})
	}
	return nil
}

func (a *shardActor) PostStop(*actor.Context) {
	if a.sweep != nil {
		a.sweep.Cancel()
	}
}

func (a *shardActor) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	switch m := msg.(type) {
	case Deliver:
		a.deliver(ctx, m)
		return actor.Handled

	case drainShard:
		ctx.Become(a.drainingBehavior)
		// The sentinel queues behind everything accepted before the
		// drain; when it surfaces the backlog is settled.
		ctx.Self().Tell(drainComplete{}, actor.NoSender)
		return actor.Handled

	case drainComplete:
		// Reached the bottom behavior: ownership came back before the
		// drain finished, nothing to do.
		return actor.Handled

	case idleSweep:
		a.sweepIdle(ctx)
		return actor.Handled

	case actor.Terminated:
		for id, ref := range a.entities {
			if actor.Equals(ref, m.Ref) {
				delete(a.entities, id)
				delete(a.lastActive, id)
				if a.lruCap != nil {
					a.lruCap.Remove(id)
				}
				break
			}
		}
		return actor.Handled
	}
	return actor.Unhandled
}

// drainingBehavior forwards deliveries to the new owner and stops on the
// drain sentinel. If ownership flipped back to this node meanwhile, the
// shard un-drains and resumes normal service.
func (a *shardActor) drainingBehavior(ctx *actor.Context, msg interface{}) actor.Result {
	switch m := msg.(type) {
	case Deliver:
		r := a.region
		owner := r.table.Load().Owner(a.shard)
		if owner == r.self || owner == "" {
			ctx.Unbecome()
			a.deliver(ctx, m)
			return actor.Handled
		}
		r.routeRemote(ctx.Envelope(), owner)
		return actor.Handled

	case drainComplete:
		ctx.StopSelf()
		return actor.Handled

	case idleSweep:
		return actor.Handled
	}
	return actor.Unhandled
}

// deliver unwraps the routed message for the entity actor, spawning it on
// first contact.
func (a *shardActor) deliver(ctx *actor.Context, d Deliver) {
	ref, ok := a.entities[d.EntityID]
	if !ok {
		spawned, err := ctx.Spawn(actor.Props{
			Producer: func() actor.Actor { return a.region.cfg.Factory.CreateEntity(d.EntityID) },
		}, d.EntityID)
		if err != nil {
			a.region.sys.DeadLetter(ctx.Envelope(), "stopped")
			return
		}
		ctx.Watch(spawned)
		a.entities[d.EntityID] = spawned
		ref = spawned
	}

	a.lastActive[d.EntityID] = time.Now()
	if a.lruCap != nil {
		a.lruCap.Add(d.EntityID, struct{}{})
	}

	env := ctx.Envelope()
	env.Message = d.Msg
	ref.Forward(env)
}

func (a *shardActor) sweepIdle(ctx *actor.Context) {
	cutoff := time.Now().Add(-a.region.cfg.Passivation.IdleTimeout)
	for id, last := range a.lastActive {
		if last.Before(cutoff) {
			a.passivate(ctx, id)
		}
	}
}

// passivate stops an idle entity; its Terminated notification cleans the
// maps. State reconstruction on next delivery is the factory's concern.
func (a *shardActor) passivate(ctx *actor.Context, entityID string) {
	ref, ok := a.entities[entityID]
	if !ok {
		return
	}
	ctx.Stop(ref)
	a.region.cfg.Factory.OnPassivate(entityID)
}
