package remote

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/message"
)

// BreakerTransport wraps a Transport with one circuit breaker per
// destination node. Once a peer's failure rate trips the breaker, sends to
// it fail immediately until the cool-down elapses, so a dead node costs a
// map lookup instead of a transport timeout per message.
type BreakerTransport struct {
	inner    Transport
	settings gobreaker.Settings

	mu       sync.Mutex
	breakers map[membership.NodeID]*gobreaker.CircuitBreaker
}

// DefaultBreakerSettings trips a node's breaker after 5 consecutive
// failures and probes it again after 10 seconds.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// NewBreaker wraps inner. The settings' Name field is overwritten per node.
func NewBreaker(inner Transport, settings gobreaker.Settings) *BreakerTransport {
	bt := &BreakerTransport{
		inner:    inner,
		settings: settings,
		breakers: make(map[membership.NodeID]*gobreaker.CircuitBreaker),
	}
	return bt
}

func (b *BreakerTransport) Send(env message.Envelope, destPath string, destNode membership.NodeID) error {
	cb := b.breakerFor(destNode)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Send(env, destPath, destNode)
	})
	return err
}

func (b *BreakerTransport) SetInboundHandler(h InboundHandler) {
	b.inner.SetInboundHandler(h)
}

func (b *BreakerTransport) breakerFor(node membership.NodeID) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[node]; ok {
		return cb
	}
	settings := b.settings
	settings.Name = "remote-" + string(node)
	cb := gobreaker.NewCircuitBreaker(settings)
	b.breakers[node] = cb
	return cb
}
