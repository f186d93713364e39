// Package hashring implements the consistent-hash ring shared by the
// consistent-hash router strategy and the shard allocator. Each node is
// projected onto the ring as V virtual points; a key maps to the first node
// point at or clockwise of the key's hash. With V around 100, membership
// churn moves roughly 1/N of the keyspace instead of nearly all of it.
package hashring

import (
	"hash/fnv"
	"sort"
	"strconv"
)

// DefaultVirtualNodes is the per-node virtual point count when a caller
// passes zero.
const DefaultVirtualNodes = 100

// Ring is an immutable consistent-hash ring. Build one with New; membership
// changes build a new ring rather than mutating, which is what lets readers
// use it without locks (see the allocator's atomic table swap).
type Ring struct {
	virtual int
	points  []point
}

type point struct {
	hash uint64
	node string
}

// New builds a ring over the given node identifiers. Nodes are sorted before
// projection so the ring is a pure function of the set, regardless of input
// order. virtualNodes <= 0 means DefaultVirtualNodes.
func New(nodes []string, virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}

	sorted := make([]string, len(nodes))
	copy(sorted, nodes)
	sort.Strings(sorted)

	r := &Ring{
		virtual: virtualNodes,
		points:  make([]point, 0, len(sorted)*virtualNodes),
	}
	for _, node := range sorted {
		for v := 0; v < virtualNodes; v++ {
			r.points = append(r.points, point{
				hash: Hash(node + "#" + strconv.Itoa(v)),
				node: node,
			})
		}
	}
	sort.Slice(r.points, func(i, j int) bool {
		if r.points[i].hash != r.points[j].hash {
			return r.points[i].hash < r.points[j].hash
		}
		// Ties resolved by node id so equal-hash collisions stay
		// deterministic.
		return r.points[i].node < r.points[j].node
	})
	return r
}

// Empty reports whether the ring has no nodes.
func (r *Ring) Empty() bool { return len(r.points) == 0 }

// Lookup returns the node owning key, or "" on an empty ring.
func (r *Ring) Lookup(key string) string {
	return r.LookupHash(Hash(key))
}

// LookupHash is Lookup for a pre-computed hash.
func (r *Ring) LookupHash(h uint64) string {
	if len(r.points) == 0 {
		return ""
	}
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i].hash >= h
	})
	if idx == len(r.points) {
		idx = 0
	}
	return r.points[idx].node
}

// Hash is the ring's key hash: 64-bit FNV-1a followed by a murmur3-style
// finalizer, so keys that differ only in their last bytes ("shard-1",
// "shard-2", ...) still spread over the whole ring.
func Hash(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	v := h.Sum64()
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}
