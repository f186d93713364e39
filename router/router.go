// Package router provides refs that fan messages out across a set of routee
// refs. A Router is itself an actor.Ref: sending to it routes to one or more
// routees per the configured strategy. Routees are either supplied
// externally or spawned and owned by the router (see Spawner); terminated
// routees are pruned on their Terminated notification, delivered through a
// small watcher actor the router installs.
package router

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/cluster/hashring"
	"github.com/actorforge/actorcore/message"
)

// Strategy picks the delivery targets for one envelope out of the live
// routee set. Implementations must be safe for concurrent use.
type Strategy interface {
	// Route returns the routees env should be delivered to. An empty
	// result means no routee was available.
	Route(env message.Envelope, routees []actor.Ref) []actor.Ref

	// RouteesChanged lets ring-building strategies rebuild derived
	// structures when the routee set changes.
	RouteesChanged(routees []actor.Ref)
}

// RoundRobin distributes envelopes by an atomically incremented counter.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Route(_ message.Envelope, routees []actor.Ref) []actor.Ref {
	if len(routees) == 0 {
		return nil
	}
	idx := int((r.counter.Add(1) - 1) % uint64(len(routees)))
	return routees[idx : idx+1]
}

func (r *RoundRobin) RouteesChanged([]actor.Ref) {}

// Random picks a uniformly random routee per envelope.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom seeds the strategy. Pass a fixed seed for deterministic tests.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Route(_ message.Envelope, routees []actor.Ref) []actor.Ref {
	if len(routees) == 0 {
		return nil
	}
	r.mu.Lock()
	idx := r.rng.Intn(len(routees))
	r.mu.Unlock()
	return routees[idx : idx+1]
}

func (r *Random) RouteesChanged([]actor.Ref) {}

// Broadcast delivers every envelope to every routee.
type Broadcast struct{}

func NewBroadcast() Broadcast { return Broadcast{} }

func (Broadcast) Route(_ message.Envelope, routees []actor.Ref) []actor.Ref { return routees }

func (Broadcast) RouteesChanged([]actor.Ref) {}

// HashKeyer lets message types carry their own routing key for the
// consistent-hash strategy. Envelope.RouteKey, when set, wins over this.
type HashKeyer interface {
	HashKey() string
}

// ConsistentHash maps envelopes onto routees through a hash ring keyed by
// routee path, so routee churn remaps only ~1/N of the keyspace. The key is
// taken from Envelope.RouteKey, then from a HashKeyer message, then from the
// message's formatted value as a last resort.
type ConsistentHash struct {
	virtualNodes int

	mu   sync.Mutex
	ring *hashring.Ring
	byID map[string]actor.Ref
}

func NewConsistentHash(virtualNodes int) *ConsistentHash {
	return &ConsistentHash{
		virtualNodes: virtualNodes,
		ring:         hashring.New(nil, virtualNodes),
		byID:         make(map[string]actor.Ref),
	}
}

func (c *ConsistentHash) Route(env message.Envelope, routees []actor.Ref) []actor.Ref {
	key := env.RouteKey
	if key == "" {
		if hk, ok := env.Message.(HashKeyer); ok {
			key = hk.HashKey()
		} else {
			key = fmt.Sprintf("%v", env.Message)
		}
	}

	c.mu.Lock()
	owner := c.ring.Lookup(key)
	ref, ok := c.byID[owner]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return []actor.Ref{ref}
}

func (c *ConsistentHash) RouteesChanged(routees []actor.Ref) {
	ids := make([]string, 0, len(routees))
	byID := make(map[string]actor.Ref, len(routees))
	for _, r := range routees {
		ids = append(ids, r.Path())
		byID[r.Path()] = r
	}
	c.mu.Lock()
	c.ring = hashring.New(ids, c.virtualNodes)
	c.byID = byID
	c.mu.Unlock()
}
