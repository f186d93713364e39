package system

import (
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/remote"
	"github.com/actorforge/actorcore/message"
)

// BindRemote attaches a remote transport's inbound side to this system:
// arriving envelopes resolve through the path registry and stale
// destinations dead-letter. Call before Transport.Start.
func (sys *ActorSystem) BindRemote(t remote.Transport) *remote.Binding {
	return remote.NewBinding(t,
		func(env message.Envelope, destPath string) bool {
			ref, ok := sys.Find(destPath)
			if !ok {
				return false
			}
			ref.Forward(env)
			return true
		},
		sys.DeadLetter,
		func(path string, node membership.NodeID) message.Sender {
			return remote.NewRef(sys, t, path, node)
		},
	)
}
