package system

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/actorforge/actorcore/dispatch"
	"github.com/actorforge/actorcore/observability"
	"github.com/actorforge/actorcore/scheduler"
)

// Config carries the tunables an ActorSystem is created with. The zero value
// is usable: every field falls back to the documented default. Embedders
// that want file/env/flag loading wrap this with the config package.
type Config struct {
	// DefaultParallelism is the worker count of the default dispatcher.
	// Zero means the number of CPUs.
	DefaultParallelism int

	// DefaultMailboxCapacity bounds the user lanes of mailboxes whose
	// Props leave capacity zero. Zero means 1000; negative means
	// unbounded.
	DefaultMailboxCapacity int

	// Throughput is the dispatcher quantum: messages drained from one
	// mailbox before yielding it. Zero means dispatch.DefaultThroughput.
	Throughput int

	// ShardCount is the fixed size of the virtual-actor keyspace,
	// a power of two. Zero means 128.
	ShardCount int

	// VirtualNodes is the per-member virtual node count on the
	// consistent-hash ring. Zero means 100.
	VirtualNodes int

	// Tick is the scheduler granularity. Zero means 10ms.
	Tick time.Duration

	// AskTimeout is the default window for Ask when the caller passes
	// zero. Zero means 5s.
	AskTimeout time.Duration

	// Logger receives structured lifecycle events. Nil means slog's
	// process default.
	Logger *slog.Logger

	// Sink receives metrics. Nil means a no-op sink.
	Sink observability.Sink
}

const (
	defaultMailboxCapacity = 1000
	defaultShardCount      = 128
	defaultVirtualNodes    = 100
	defaultAskTimeout      = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DefaultParallelism <= 0 {
		c.DefaultParallelism = runtime.NumCPU()
	}
	if c.DefaultMailboxCapacity == 0 {
		c.DefaultMailboxCapacity = defaultMailboxCapacity
	}
	if c.Throughput <= 0 {
		c.Throughput = dispatch.DefaultThroughput
	}
	if c.ShardCount <= 0 {
		c.ShardCount = defaultShardCount
	}
	if c.VirtualNodes <= 0 {
		c.VirtualNodes = defaultVirtualNodes
	}
	if c.Tick <= 0 {
		c.Tick = scheduler.DefaultTick
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = defaultAskTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sink == nil {
		c.Sink = observability.Noop()
	}
	return c
}
