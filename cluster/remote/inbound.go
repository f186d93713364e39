package remote

import (
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/message"
)

// Binding glues a Transport's inbound side to the local actor system: it
// reconstructs the remote sender ref, resolves the destination path, and
// forwards the envelope. Unresolvable paths dead-letter with "stale-ref",
// which is exactly what a message to a moved shard or a stopped entity
// should do. The callbacks keep this package free of a dependency on the
// system package; system.BindRemote is the canonical construction.
type Binding struct {
	transport Transport
	deliver   func(env message.Envelope, destPath string) bool
	dead      func(env message.Envelope, reason string)
	makeRef   func(path string, node membership.NodeID) message.Sender
}

// NewBinding installs the binding as transport's inbound handler.
//
//   - deliver resolves destPath locally and enqueues, reporting success.
//   - dead routes undeliverable envelopes to the dead-letter sink.
//   - makeRef mints a remote ref for the sender path on the source node,
//     so local actors can Reply across the wire.
func NewBinding(
	transport Transport,
	deliver func(env message.Envelope, destPath string) bool,
	dead func(env message.Envelope, reason string),
	makeRef func(path string, node membership.NodeID) message.Sender,
) *Binding {
	b := &Binding{transport: transport, deliver: deliver, dead: dead, makeRef: makeRef}
	transport.SetInboundHandler(b.onInbound)
	return b
}

func (b *Binding) onInbound(env message.Envelope, destPath, senderPath string, sourceNode membership.NodeID) {
	if senderPath != "" && b.makeRef != nil {
		env.Sender = b.makeRef(senderPath, sourceNode)
	}
	if !b.deliver(env, destPath) {
		b.dead(env, "stale-ref")
	}
}
