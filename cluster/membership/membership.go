// Package membership defines the cluster view the sharding layer consumes.
// The core does not implement gossip or failure detection: a Provider is
// pluggable, and the core only reacts to the member set and its change
// events. StaticProvider is the in-process implementation used for tests and
// for single-node deployments; production embedders adapt their own
// membership service (serf, consul, k8s endpoints) behind the same
// interface.
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// NodeID is a stable per-process identifier.
type NodeID string

// NewNodeID mints a random NodeID for this process.
func NewNodeID() NodeID { return NodeID(uuid.NewString()) }

// Status is a member's liveness from the local node's point of view.
type Status int

const (
	StatusUp Status = iota
	StatusUnreachable
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusUnreachable:
		return "unreachable"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Member is one node in the cluster view.
type Member struct {
	ID      NodeID
	Address string
	Roles   []string
	Status  Status
}

// EventType identifies a membership change.
type EventType int

const (
	MemberJoined EventType = iota
	MemberUp
	MemberUnreachable
	MemberRemoved
)

func (t EventType) String() string {
	switch t {
	case MemberJoined:
		return "joined"
	case MemberUp:
		return "up"
	case MemberUnreachable:
		return "unreachable"
	case MemberRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one membership change notification.
type Event struct {
	Type   EventType
	Member Member
}

// Listener receives membership events. Called synchronously from the
// provider's event path; implementations must not block.
type Listener func(Event)

// Provider reports the current cluster view and notifies on changes.
type Provider interface {
	// CurrentMembers returns the members currently considered Up.
	CurrentMembers() []Member

	// CurrentNode identifies the local node.
	CurrentNode() Member

	// Subscribe registers a listener for membership events and returns
	// a function that cancels the subscription.
	Subscribe(l Listener) (cancel func())
}

// StaticProvider is an in-process Provider whose membership is mutated
// explicitly. Every mutation broadcasts the corresponding event to
// subscribers.
type StaticProvider struct {
	mu      sync.Mutex
	self    Member
	members map[NodeID]Member
	subs    map[int]Listener
	nextSub int
}

// NewStaticProvider creates a provider with self as the only Up member.
func NewStaticProvider(self Member) *StaticProvider {
	self.Status = StatusUp
	return &StaticProvider{
		self:    self,
		members: map[NodeID]Member{self.ID: self},
		subs:    make(map[int]Listener),
	}
}

func (p *StaticProvider) CurrentMembers() []Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		if m.Status == StatusUp {
			out = append(out, m)
		}
	}
	return out
}

func (p *StaticProvider) CurrentNode() Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.self
}

func (p *StaticProvider) Subscribe(l Listener) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = l
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Join adds a member in Up status, emitting MemberJoined then MemberUp.
func (p *StaticProvider) Join(m Member) {
	m.Status = StatusUp
	p.mu.Lock()
	p.members[m.ID] = m
	p.mu.Unlock()
	p.emit(Event{Type: MemberJoined, Member: m})
	p.emit(Event{Type: MemberUp, Member: m})
}

// MarkUnreachable flags a member as unreachable; it drops out of
// CurrentMembers until marked up again.
func (p *StaticProvider) MarkUnreachable(id NodeID) {
	p.mu.Lock()
	m, ok := p.members[id]
	if ok {
		m.Status = StatusUnreachable
		p.members[id] = m
	}
	p.mu.Unlock()
	if ok {
		p.emit(Event{Type: MemberUnreachable, Member: m})
	}
}

// MarkUp restores an unreachable member.
func (p *StaticProvider) MarkUp(id NodeID) {
	p.mu.Lock()
	m, ok := p.members[id]
	if ok {
		m.Status = StatusUp
		p.members[id] = m
	}
	p.mu.Unlock()
	if ok {
		p.emit(Event{Type: MemberUp, Member: m})
	}
}

// Remove deletes a member from the view.
func (p *StaticProvider) Remove(id NodeID) {
	p.mu.Lock()
	m, ok := p.members[id]
	if ok {
		m.Status = StatusRemoved
		delete(p.members, id)
	}
	p.mu.Unlock()
	if ok {
		p.emit(Event{Type: MemberRemoved, Member: m})
	}
}

func (p *StaticProvider) emit(ev Event) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.subs))
	for _, l := range p.subs {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}
