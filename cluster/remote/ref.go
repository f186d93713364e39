package remote

import (
	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/message"
)

// Ref is an actor.Ref addressed at a path on another node. All sends go
// through the Transport; failures are opaque to the caller and route to
// dead letters with reason "remote-delivery-failed".
//
// A remote ref carries no incarnation uid (uid 0): staleness is resolved on
// the owning node, where the registry knows the live incarnation. Death
// watch does not cross nodes; SendSystem reports false so a local watcher
// of a remote ref receives its Terminated immediately rather than never.
type Ref struct {
	sys       actor.System
	transport Transport
	path      string
	node      membership.NodeID
}

// NewRef builds a remote ref.
func NewRef(sys actor.System, transport Transport, path string, node membership.NodeID) *Ref {
	return &Ref{sys: sys, transport: transport, path: path, node: node}
}

// Node returns the destination node id.
func (r *Ref) Node() membership.NodeID { return r.node }

func (r *Ref) Path() string { return r.path }
func (r *Ref) Uid() uint64  { return 0 }

func (r *Ref) Tell(msg interface{}, sender actor.Ref) {
	env := message.New(msg, nil)
	if sender != nil && sender != actor.NoSender {
		env = message.New(msg, sender)
	}
	r.deliver(env)
}

func (r *Ref) TellWithPriority(msg interface{}, sender actor.Ref, prio message.Priority) {
	env := message.New(msg, nil)
	if sender != nil && sender != actor.NoSender {
		env = message.New(msg, sender)
	}
	r.deliver(env.WithPriority(prio))
}

func (r *Ref) Forward(env message.Envelope) {
	r.deliver(env)
}

func (r *Ref) SendSystem(actor.SystemMessage) bool { return false }

func (r *Ref) deliver(env message.Envelope) {
	if err := r.transport.Send(env, r.path, r.node); err != nil {
		r.sys.Logger().Debug("remote delivery failed",
			"dest", r.path,
			"node", string(r.node),
			"error", err)
		r.sys.DeadLetter(env, "remote-delivery-failed")
	}
}
