// Package otelsink implements observability.Sink on OpenTelemetry metrics.
// The core stays SDK-free; embedders that run an OTel pipeline plug this in
// via system.Config.Sink.
package otelsink

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/actorforge/actorcore/observability"
)

const scopeName = "github.com/actorforge/actorcore"

// Sink records the core's counters and gauges through an OTel Meter.
type Sink struct {
	enqueued   metric.Int64Counter
	dropped    metric.Int64Counter
	processed  metric.Int64Counter
	failures   metric.Int64Counter
	restarts   metric.Int64Counter
	askTimeout metric.Int64Counter
	rebalances metric.Int64Counter

	activeActors metric.Int64Gauge
	shardLocal   metric.Int64Gauge
	shardRemote  metric.Int64Gauge
	mailboxSize  metric.Int64Gauge
}

// New builds a Sink from a MeterProvider. The first instrument creation
// error is returned as is; a partially built sink is never returned.
func New(provider metric.MeterProvider) (*Sink, error) {
	meter := provider.Meter(scopeName)
	s := &Sink{}

	var err error
	if s.enqueued, err = meter.Int64Counter("actor_messages_enqueued_total",
		metric.WithDescription("Envelopes accepted by mailboxes")); err != nil {
		return nil, err
	}
	if s.dropped, err = meter.Int64Counter("actor_messages_dropped_total",
		metric.WithDescription("Envelopes routed to dead letters, by reason")); err != nil {
		return nil, err
	}
	if s.processed, err = meter.Int64Counter("actor_messages_processed_total",
		metric.WithDescription("Envelopes handled by behaviors")); err != nil {
		return nil, err
	}
	if s.failures, err = meter.Int64Counter("actor_failures_total",
		metric.WithDescription("Exceptions caught from user actor code")); err != nil {
		return nil, err
	}
	if s.restarts, err = meter.Int64Counter("actor_restarts_total",
		metric.WithDescription("Supervisor-ordered restarts")); err != nil {
		return nil, err
	}
	if s.askTimeout, err = meter.Int64Counter("actor_ask_timeouts_total",
		metric.WithDescription("Ask futures failed by timeout")); err != nil {
		return nil, err
	}
	if s.rebalances, err = meter.Int64Counter("shard_rebalance_total",
		metric.WithDescription("Completed shard rebalance passes")); err != nil {
		return nil, err
	}
	if s.activeActors, err = meter.Int64Gauge("actor_active",
		metric.WithDescription("Currently registered actor cells")); err != nil {
		return nil, err
	}
	if s.shardLocal, err = meter.Int64Gauge("shard_local_count",
		metric.WithDescription("Shards owned by this node, per region")); err != nil {
		return nil, err
	}
	if s.shardRemote, err = meter.Int64Gauge("shard_remote_count",
		metric.WithDescription("Shards owned by other nodes, per region")); err != nil {
		return nil, err
	}
	if s.mailboxSize, err = meter.Int64Gauge("actor_mailbox_size",
		metric.WithDescription("Mailbox depth by actor path")); err != nil {
		return nil, err
	}
	return s, nil
}

var _ observability.Sink = (*Sink)(nil)

func (s *Sink) IncMessagesEnqueued(dispatcher string) {
	s.enqueued.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("dispatcher", dispatcher)))
}

func (s *Sink) IncMessagesDropped(reason string) {
	s.dropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

func (s *Sink) IncMessagesProcessed(dispatcher string) {
	s.processed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("dispatcher", dispatcher)))
}

func (s *Sink) IncActorFailures(path string) {
	s.failures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("path", path)))
}

func (s *Sink) IncRestarts(path string) {
	s.restarts.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("path", path)))
}

func (s *Sink) IncAskTimeouts(path string) {
	s.askTimeout.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("target", path)))
}

func (s *Sink) IncShardRebalance(region string) {
	s.rebalances.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("region", region)))
}

func (s *Sink) SetActiveActors(n int) {
	s.activeActors.Record(context.Background(), int64(n))
}

func (s *Sink) SetShardLocalCount(region string, n int) {
	s.shardLocal.Record(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("region", region)))
}

func (s *Sink) SetShardRemoteCount(region string, n int) {
	s.shardRemote.Record(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("region", region)))
}

func (s *Sink) SetMailboxSize(path string, n int) {
	s.mailboxSize.Record(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("path", path)))
}
