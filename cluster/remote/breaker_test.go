package remote

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/message"
)

type flakyTransport struct {
	fail  atomic.Bool
	calls atomic.Int64
}

func (f *flakyTransport) Send(message.Envelope, string, membership.NodeID) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errors.New("wire down")
	}
	return nil
}

func (f *flakyTransport) SetInboundHandler(InboundHandler) {}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyTransport{}
	inner.fail.Store(true)

	bt := NewBreaker(inner, gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	env := message.New("x", nil)
	for i := 0; i < 3; i++ {
		require.Error(t, bt.Send(env, "/user/a", "peer"))
	}
	require.Equal(t, int64(3), inner.calls.Load())

	// Breaker open: the inner transport is no longer exercised.
	require.Error(t, bt.Send(env, "/user/a", "peer"))
	require.Equal(t, int64(3), inner.calls.Load())
}

func TestBreakerIsolatesNodes(t *testing.T) {
	inner := &flakyTransport{}
	inner.fail.Store(true)

	bt := NewBreaker(inner, gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	env := message.New("x", nil)
	require.Error(t, bt.Send(env, "/user/a", "bad-node"))
	require.Error(t, bt.Send(env, "/user/a", "bad-node")) // open, not forwarded

	inner.fail.Store(false)
	require.NoError(t, bt.Send(env, "/user/a", "good-node"),
		"a tripped breaker on one node must not affect another")
}

func TestGobCodecRoundTrip(t *testing.T) {
	type payload struct {
		ID   string
		Seen int
	}
	RegisterType(payload{})

	codec := GobCodec{}
	data, err := codec.Marshal(payload{ID: "e1", Seen: 3})
	require.NoError(t, err)

	back, err := codec.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, payload{ID: "e1", Seen: 3}, back)
}
