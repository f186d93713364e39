// Package shard provides virtual actors keyed by entity id: a Region on
// every node routes entity messages to the shard's owning node, spawning
// entity actors lazily on first delivery and passivating idle ones. Shard
// ownership comes from a pure consistent-hash allocation over the live
// member set, so every node computes the same table from the same view and
// a membership change moves only ~1/N of the shards.
package shard

import (
	"sort"
	"strconv"

	"github.com/actorforge/actorcore/cluster/hashring"
	"github.com/actorforge/actorcore/cluster/membership"
)

// ID is a shard number in [0, shardCount).
type ID int

// DefaultShardCount is the keyspace granularity when the config leaves it
// zero. Power of two, fixed at cluster start.
const DefaultShardCount = 128

// Of maps an entity id onto its shard. shardCount must be a power of two.
func Of(entityID string, shardCount int) ID {
	return ID(hashring.Hash(entityID) & uint64(shardCount-1))
}

// Table is one immutable shard-to-node allocation. Readers hold it through
// an atomic pointer; a rebalance builds a new Table and swaps, so no reader
// ever observes a torn mapping.
type Table struct {
	// Version increases with every swap at the region that installed it.
	Version uint64
	// ShardCount is the fixed keyspace size this table covers.
	ShardCount int
	owners     []membership.NodeID
}

// Owner returns the node owning shard s, or "" when the table is empty.
func (t *Table) Owner(s ID) membership.NodeID {
	if t == nil || len(t.owners) == 0 {
		return ""
	}
	return t.owners[int(s)%len(t.owners)]
}

// Owners returns a copy of the full allocation, indexed by shard.
func (t *Table) Owners() []membership.NodeID {
	out := make([]membership.NodeID, len(t.owners))
	copy(out, t.owners)
	return out
}

// Allocate computes the allocation table for the given members. It is a
// pure function: for a fixed (members, shardCount, virtualNodes) the result
// is identical regardless of member order or calling node, which is what
// lets every node maintain its own copy without coordination. Members not
// in Up status are ignored. The returned table has Version 0; the region
// stamps versions when swapping.
func Allocate(members []membership.Member, shardCount, virtualNodes int) *Table {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Status == membership.StatusUp {
			ids = append(ids, string(m.ID))
		}
	}
	sort.Strings(ids)

	t := &Table{
		ShardCount: shardCount,
		owners:     make([]membership.NodeID, shardCount),
	}
	if len(ids) == 0 {
		return t
	}

	ring := hashring.New(ids, virtualNodes)
	for s := 0; s < shardCount; s++ {
		t.owners[s] = membership.NodeID(ring.Lookup("shard-" + strconv.Itoa(s)))
	}
	return t
}

// Diff lists the shards whose owner differs between two tables of the same
// shard count; used by the rebalance planner.
func Diff(old, next *Table) []ID {
	if old == nil || next == nil {
		return nil
	}
	var moved []ID
	for s := 0; s < next.ShardCount; s++ {
		if old.Owner(ID(s)) != next.Owner(ID(s)) {
			moved = append(moved, ID(s))
		}
	}
	return moved
}
