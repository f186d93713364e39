// Package observability declares the metrics boundary between the actor
// core and whatever telemetry backend an embedder chooses. The core never
// imports a concrete metrics SDK itself; it only calls through this
// interface. See otelsink for a concrete OpenTelemetry-backed
// implementation.
package observability

// Sink receives the counters and gauges the core emits.
// Implementations must be safe for concurrent use: every
// method may be called from many actor/dispatcher goroutines at once.
type Sink interface {
	// IncMessagesEnqueued counts one envelope accepted by a mailbox.
	IncMessagesEnqueued(dispatcher string)
	// IncMessagesDropped counts one envelope that could not be
	// delivered, tagged with a reason code (mailbox-full, stale-ref,
	// unhandled, remote-delivery-failed, ...).
	IncMessagesDropped(reason string)
	// IncMessagesProcessed counts one envelope successfully handled by
	// a behavior.
	IncMessagesProcessed(dispatcher string)
	// IncActorFailures counts one exception caught from user code.
	IncActorFailures(path string)
	// IncRestarts counts one supervisor-ordered restart.
	IncRestarts(path string)
	// IncAskTimeouts counts one ask() that timed out before a reply.
	IncAskTimeouts(path string)
	// IncShardRebalance counts one completed shard rebalance pass.
	IncShardRebalance(region string)

	// SetActiveActors reports the current live actor count.
	SetActiveActors(n int)
	// SetShardLocalCount reports shards currently owned locally.
	SetShardLocalCount(region string, n int)
	// SetShardRemoteCount reports shards currently owned by other nodes.
	SetShardRemoteCount(region string, n int)
	// SetMailboxSize reports one mailbox's current depth, identified by
	// actor path.
	SetMailboxSize(path string, n int)
}

// noop discards every call. Used as the default Sink so embedders that don't
// care about metrics pay no integration cost.
type noop struct{}

func (noop) IncMessagesEnqueued(string)       {}
func (noop) IncMessagesDropped(string)        {}
func (noop) IncMessagesProcessed(string)      {}
func (noop) IncActorFailures(string)          {}
func (noop) IncRestarts(string)               {}
func (noop) IncAskTimeouts(string)            {}
func (noop) IncShardRebalance(string)         {}
func (noop) SetActiveActors(int)              {}
func (noop) SetShardLocalCount(string, int)   {}
func (noop) SetShardRemoteCount(string, int)  {}
func (noop) SetMailboxSize(string, int)       {}

// Noop returns a Sink that discards every observation.
func Noop() Sink { return noop{} }
