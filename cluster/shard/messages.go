package shard

import "github.com/actorforge/actorcore/cluster/remote"

// Deliver is the routed form of an entity message: regions exchange these
// across nodes and shard actors unwrap them for the entity. Msg's concrete
// type must be gob-registered by the embedder for cross-node traffic.
type Deliver struct {
	EntityID string
	Msg      interface{}
}

func init() {
	remote.RegisterType(Deliver{})
}

// rebalance carries a freshly allocated table into the region actor.
type rebalance struct {
	next *Table
}

// drainShard tells a shard actor its region lost ownership: switch to
// forwarding, then stop once the backlog queued ahead of the drain has been
// worked off.
type drainShard struct{}

// drainComplete is the self-sentinel a draining shard enqueues behind its
// backlog; receiving it means every message accepted before the drain has
// been processed or forwarded, so the shard can stop.
type drainComplete struct{}

// idleSweep triggers the shard actor's idle-entity passivation pass.
type idleSweep struct{}
