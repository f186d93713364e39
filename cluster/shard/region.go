package shard

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/remote"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/system"
)

// EntityFactory builds entity actors for one region type. Entities carry no
// migrated state: after a rebalance the new owner re-creates them on first
// delivery, and implementations reconstruct state on demand from wherever
// the embedder persists it.
type EntityFactory interface {
	// CreateEntity returns the actor instance for entityID. Called on
	// first delivery after spawn or rebalance.
	CreateEntity(entityID string) actor.Actor

	// OnPassivate is notified when the region stops an idle entity.
	OnPassivate(entityID string)
}

// Passivation selects when idle entities are stopped. Zero values disable
// the corresponding policy; both may be active at once.
type Passivation struct {
	// IdleTimeout stops entities that received nothing for this long.
	IdleTimeout time.Duration
	// MaxEntities caps live entities per shard, evicting least recently
	// used beyond it.
	MaxEntities int
}

// Config assembles a Region.
type Config struct {
	// TypeName names the region; its actors live under /user/<TypeName>.
	TypeName string
	// Factory builds entities. Required.
	Factory EntityFactory
	// Provider is the cluster view.
	Provider membership.Provider
	// Transport carries cross-node deliveries. Nil is valid for a
	// single-node region: remote owners then dead-letter.
	Transport remote.Transport
	// ShardCount and VirtualNodes default from the system config when
	// zero.
	ShardCount   int
	VirtualNodes int
	// Passivation policy for idle entities.
	Passivation Passivation
}

// Region is the per-node entry point to one virtual-actor type. Ref returns
// a location-transparent ref for an entity id; the actual routing decision
// happens at send time against the current allocation table, so callers
// that re-resolve through the region after a rebalance always reach the
// new owner.
type Region struct {
	cfg  Config
	sys  *system.ActorSystem
	self membership.NodeID

	table   atomic.Pointer[Table]
	version atomic.Uint64

	root  actor.Ref
	unsub func()
}

// Start creates the region: the root region actor is spawned under
// /user/<TypeName>, the initial allocation is computed from the provider's
// current view, and membership events keep it refreshed.
func Start(sys *system.ActorSystem, cfg Config) (*Region, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("shard: region %q without entity factory", cfg.TypeName)
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = sys.Configured().ShardCount
	}
	if cfg.VirtualNodes <= 0 {
		cfg.VirtualNodes = sys.Configured().VirtualNodes
	}

	r := &Region{
		cfg:  cfg,
		sys:  sys,
		self: cfg.Provider.CurrentNode().ID,
	}
	r.installTable(Allocate(cfg.Provider.CurrentMembers(), cfg.ShardCount, cfg.VirtualNodes))

	root, err := sys.Spawn(actor.Props{
		Producer: func() actor.Actor { return newRegionActor(r) },
	}, cfg.TypeName)
	if err != nil {
		return nil, err
	}
	r.root = root

	r.unsub = cfg.Provider.Subscribe(func(membership.Event) {
		next := Allocate(cfg.Provider.CurrentMembers(), cfg.ShardCount, cfg.VirtualNodes)
		r.installTable(next)
		root.Tell(rebalance{next: r.table.Load()}, actor.NoSender)
	})
	return r, nil
}

// Stop unsubscribes from membership and stops the region's actors.
func (r *Region) Stop() {
	if r.unsub != nil {
		r.unsub()
	}
	r.sys.Stop(r.root)
}

// TypeName returns the region's type name.
func (r *Region) TypeName() string { return r.cfg.TypeName }

// Table snapshots the current allocation for introspection.
func (r *Region) Table() *Table { return r.table.Load() }

// installTable stamps a version and atomically swaps the allocation.
func (r *Region) installTable(t *Table) {
	t.Version = r.version.Add(1)
	r.table.Store(t)

	local, remoteCount := 0, 0
	for _, owner := range t.Owners() {
		if owner == r.self {
			local++
		} else {
			remoteCount++
		}
	}
	r.sys.Sink().SetShardLocalCount(r.cfg.TypeName, local)
	r.sys.Sink().SetShardRemoteCount(r.cfg.TypeName, remoteCount)
}

// Ref returns the location-transparent handle for an entity. The returned
// ref re-resolves ownership on every send; holding it across rebalances is
// safe, but a remote ref obtained by other means (e.g. cached transport
// paths) goes stale when the shard moves.
func (r *Region) Ref(entityID string) actor.Ref {
	return &entityRef{region: r, entityID: entityID}
}

// rootPath is the region actor's path on any node.
func (r *Region) rootPath() string { return "/user/" + r.cfg.TypeName }

// entityPath is the full hierarchical address of one entity.
func (r *Region) entityPath(entityID string) string {
	s := Of(entityID, r.cfg.ShardCount)
	return r.rootPath() + "/" + strconv.Itoa(int(s)) + "/" + entityID
}

// routeLocal hands a Deliver to the local region actor.
func (r *Region) routeLocal(env message.Envelope) {
	r.root.Forward(env)
}

// routeRemote ships a Deliver to the owning node's region actor. With no
// transport configured the envelope dead-letters.
func (r *Region) routeRemote(env message.Envelope, owner membership.NodeID) {
	if r.cfg.Transport == nil {
		r.sys.DeadLetter(env, "remote-delivery-failed")
		return
	}
	if err := r.cfg.Transport.Send(env, r.rootPath(), owner); err != nil {
		r.sys.DeadLetter(env, "remote-delivery-failed")
	}
}

// entityRef routes every send through its region's current table. It is
// what Region.Ref hands out: stable identity (path of the entity), dynamic
// location.
type entityRef struct {
	region   *Region
	entityID string
}

func (e *entityRef) Path() string { return e.region.entityPath(e.entityID) }
func (e *entityRef) Uid() uint64  { return 0 }

func (e *entityRef) Tell(msg interface{}, sender actor.Ref) {
	env := message.New(Deliver{EntityID: e.entityID, Msg: msg}, senderOrNil(sender))
	e.route(env)
}

func (e *entityRef) TellWithPriority(msg interface{}, sender actor.Ref, prio message.Priority) {
	env := message.New(Deliver{EntityID: e.entityID, Msg: msg}, senderOrNil(sender)).WithPriority(prio)
	e.route(env)
}

func (e *entityRef) Forward(env message.Envelope) {
	wrapped := env
	wrapped.Message = Deliver{EntityID: e.entityID, Msg: env.Message}
	e.route(wrapped)
}

func (e *entityRef) SendSystem(actor.SystemMessage) bool { return false }

func (e *entityRef) route(env message.Envelope) {
	r := e.region
	owner := r.table.Load().Owner(Of(e.entityID, r.cfg.ShardCount))
	if owner == r.self || owner == "" {
		r.routeLocal(env)
		return
	}
	r.routeRemote(env, owner)
}

func senderOrNil(r actor.Ref) message.Sender {
	if r == nil || r == actor.NoSender {
		return nil
	}
	return r
}
