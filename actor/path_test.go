package actor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathChildAndParent(t *testing.T) {
	root := NewPath("/")
	user := root.Child("user")
	worker := user.Child("worker")

	require.Equal(t, "/user", user.String())
	require.Equal(t, "/user/worker", worker.String())
	require.Equal(t, "worker", worker.Name())
	require.Equal(t, "/user", worker.Parent().String())
	require.Equal(t, "/", user.Parent().String())
}

func TestUidGeneratorIsMonotonic(t *testing.T) {
	var g UidGenerator
	prev := g.Next()
	for i := 0; i < 100; i++ {
		next := g.Next()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestAnonNameSequence(t *testing.T) {
	require.Equal(t, "$a", anonName(0))
	require.Equal(t, "$b", anonName(1))
	require.Equal(t, "$z", anonName(25))
	require.Equal(t, "$aa", anonName(26))
	require.Equal(t, "$ab", anonName(27))
}

func TestRefEquality(t *testing.T) {
	require.True(t, Equals(nil, nil))
	require.True(t, Equals(NoSender, NoSender))
	require.False(t, Equals(NoSender, nil))
}
