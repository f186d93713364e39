// Package remote binds ActorRef operations to a pluggable node-to-node
// transport. The core defines the Transport contract and the Ref adapter;
// grpctransport is the bundled implementation, and NewBreaker wraps any
// Transport with a circuit breaker so a persistently failing peer degrades
// to fast dead-lettering instead of piling up blocked senders.
//
// Delivery is at-most-once: a Send error means the envelope did not arrive,
// and the caller's path routes it to dead letters. There is no retry layer
// here.
package remote

import (
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/message"
)

// InboundHandler is invoked by a Transport when an envelope arrives for a
// local path. senderPath may be empty for fire-and-forget sends with no
// reply target; when set, the binding reconstructs a remote ref to it on
// sourceNode so local actors can Reply.
type InboundHandler func(env message.Envelope, destPath, senderPath string, sourceNode membership.NodeID)

// Transport moves envelopes between nodes.
type Transport interface {
	// Send delivers env to destPath on destNode. A non-nil error means
	// the envelope was not delivered; callers dead-letter it.
	Send(env message.Envelope, destPath string, destNode membership.NodeID) error

	// SetInboundHandler binds the local delivery callback. Must be
	// called before the transport starts accepting traffic.
	SetInboundHandler(h InboundHandler)
}

// LocalNoder is implemented by transports that know their own node id. The
// Ref adapter does not use it.
type LocalNoder interface {
	LocalNode() membership.NodeID
}
