package grpctransport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/remote"
	"github.com/actorforge/actorcore/message"
)

type ping struct {
	Seq int
}

func init() {
	remote.RegisterType(ping{})
}

type inboundRecorder struct {
	mu   sync.Mutex
	got  []message.Envelope
	dest []string
	from []membership.NodeID
}

func (r *inboundRecorder) handler(env message.Envelope, destPath, _ string, source membership.NodeID) {
	r.mu.Lock()
	r.got = append(r.got, env)
	r.dest = append(r.dest, destPath)
	r.from = append(r.from, source)
	r.mu.Unlock()
}

func (r *inboundRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestDeliverAcrossNodes(t *testing.T) {
	addrs := map[membership.NodeID]string{}
	var mu sync.Mutex
	resolve := func(n membership.NodeID) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		addr, ok := addrs[n]
		return addr, ok
	}

	recA := &inboundRecorder{}
	a := New("node-a", resolve, Config{ListenAddr: "127.0.0.1:0"})
	a.SetInboundHandler(recA.handler)
	require.NoError(t, a.Start())
	defer a.Stop()

	recB := &inboundRecorder{}
	b := New("node-b", resolve, Config{ListenAddr: "127.0.0.1:0"})
	b.SetInboundHandler(recB.handler)
	require.NoError(t, b.Start())
	defer b.Stop()

	mu.Lock()
	addrs["node-a"] = a.Addr()
	addrs["node-b"] = b.Addr()
	mu.Unlock()

	env := message.New(ping{Seq: 42}, nil).WithCorrelationID("corr-1")
	require.NoError(t, b.Send(env, "/user/target", "node-a"))

	require.Eventually(t, func() bool { return recA.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	recA.mu.Lock()
	defer recA.mu.Unlock()
	require.Equal(t, ping{Seq: 42}, recA.got[0].Message)
	require.Equal(t, "corr-1", recA.got[0].CorrelationID)
	require.Equal(t, "/user/target", recA.dest[0])
	require.Equal(t, membership.NodeID("node-b"), recA.from[0])
}

func TestSendToUnknownNodeFails(t *testing.T) {
	resolve := func(membership.NodeID) (string, bool) { return "", false }

	tr := New("lonely", resolve, Config{ListenAddr: "127.0.0.1:0"})
	tr.SetInboundHandler(func(message.Envelope, string, string, membership.NodeID) {})
	require.NoError(t, tr.Start())
	defer tr.Stop()

	err := tr.Send(message.New(ping{}, nil), "/user/x", "nowhere")
	require.Error(t, err)
}

func TestStartWithoutHandlerFails(t *testing.T) {
	tr := New("bare", func(membership.NodeID) (string, bool) { return "", false }, Config{ListenAddr: "127.0.0.1:0"})
	require.Error(t, tr.Start())
}
