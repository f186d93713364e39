package actor

import (
	"strings"
	"sync/atomic"
)

// Path is a hierarchical actor name, e.g. "/user/parent/child". Equality of
// an ActorRef is by (Path, Uid): a ref whose uid no longer matches the
// current incarnation at that path is stale and routes to dead letters.
type Path struct {
	value string
}

// NewPath constructs a Path from its string form. Callers normally build
// paths via Path.Child rather than formatting strings themselves.
func NewPath(value string) Path { return Path{value: value} }

// String returns the path's textual form.
func (p Path) String() string { return p.value }

// Child appends name as a path segment.
func (p Path) Child(name string) Path {
	if p.value == "" || p.value == "/" {
		return Path{value: "/" + name}
	}
	return Path{value: p.value + "/" + name}
}

// Parent returns the path one level up, or the root path if p has no parent.
func (p Path) Parent() Path {
	idx := strings.LastIndex(p.value, "/")
	if idx <= 0 {
		return Path{value: "/"}
	}
	return Path{value: p.value[:idx]}
}

// Name returns the last path segment.
func (p Path) Name() string {
	idx := strings.LastIndex(p.value, "/")
	return p.value[idx+1:]
}

// UidGenerator produces the monotonically increasing uid stamped onto every
// new cell incarnation at a path, so that a ref captured before a restart of
// a stopped-and-respawned path can be told apart from one captured after.
// The actor system owns one per process namespace.
type UidGenerator struct {
	counter atomic.Uint64
}

// Next returns the next unique uid. Safe for concurrent use.
func (g *UidGenerator) Next() uint64 {
	return g.counter.Add(1)
}
