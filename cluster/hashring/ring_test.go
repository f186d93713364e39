package hashring

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLookupIsDeterministicAcrossInputOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nodes := rapid.SliceOfNDistinct(rapid.StringMatching(`node-[a-z0-9]{4}`), 1, 12,
			func(s string) string { return s }).Draw(rt, "nodes")
		perm := rapid.Permutation(nodes).Draw(rt, "perm")

		a := New(nodes, 50)
		b := New(perm, 50)

		key := rapid.StringMatching(`key-[a-z0-9]{1,16}`).Draw(rt, "key")
		require.Equal(rt, a.Lookup(key), b.Lookup(key),
			"ring must be a pure function of the node set")
	})
}

func TestEmptyRing(t *testing.T) {
	r := New(nil, 10)
	require.True(t, r.Empty())
	require.Equal(t, "", r.Lookup("anything"))
}

func TestSingleNodeOwnsEverything(t *testing.T) {
	r := New([]string{"only"}, 10)
	for i := 0; i < 100; i++ {
		require.Equal(t, "only", r.Lookup("key-"+strconv.Itoa(i)))
	}
}

// TestChurnMovesBoundedFraction verifies the stability claim: adding one
// node to an N-node ring should remap roughly 1/(N+1) of the keys, and far
// fewer than a modular rehash would.
func TestChurnMovesBoundedFraction(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4"}
	before := New(nodes, DefaultVirtualNodes)
	after := New(append(nodes, "n5"), DefaultVirtualNodes)

	const keys = 4000
	moved := 0
	for i := 0; i < keys; i++ {
		k := "entity-" + strconv.Itoa(i)
		if before.Lookup(k) != after.Lookup(k) {
			moved++
		}
	}

	// Expected ~1/5 of the keys; anything under half demonstrates the
	// consistent-hash property with a wide safety margin.
	require.Less(t, moved, keys/2, "churn moved %d of %d keys", moved, keys)
	require.Greater(t, moved, 0, "a new node must take over some keys")

	// Keys that did not move still map to their old node.
	for i := 0; i < keys; i++ {
		k := "entity-" + strconv.Itoa(i)
		if after.Lookup(k) != "n5" {
			require.Equal(t, before.Lookup(k), after.Lookup(k))
		}
	}
}
