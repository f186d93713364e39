package shard

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/remote"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/system"
)

// memNetwork is an in-process wire: transports deliver synchronously to the
// destination node's inbound handler, which is enough to exercise routing,
// forwarding, and rebalance without sockets.
type memNetwork struct {
	mu       sync.Mutex
	handlers map[membership.NodeID]remote.InboundHandler
}

func newMemNetwork() *memNetwork {
	return &memNetwork{handlers: make(map[membership.NodeID]remote.InboundHandler)}
}

type memTransport struct {
	net  *memNetwork
	self membership.NodeID
}

func (n *memNetwork) transport(self membership.NodeID) *memTransport {
	return &memTransport{net: n, self: self}
}

func (t *memTransport) Send(env message.Envelope, destPath string, destNode membership.NodeID) error {
	t.net.mu.Lock()
	h, ok := t.net.handlers[destNode]
	t.net.mu.Unlock()
	if !ok {
		return fmt.Errorf("memtransport: unknown node %s", destNode)
	}

	senderPath := ""
	if env.Sender != nil {
		senderPath = env.Sender.Path()
	}
	// Like a real wire, only the sender's path crosses; the destination
	// binding rebuilds a ref from it.
	env.Sender = nil
	h(env, destPath, senderPath, t.self)
	return nil
}

func (t *memTransport) SetInboundHandler(h remote.InboundHandler) {
	t.net.mu.Lock()
	t.net.handlers[t.self] = h
	t.net.mu.Unlock()
}

// recordingFactory notes which node each delivery landed on.
type recordingFactory struct {
	node       string
	deliveries *sync.Map // entityID -> []string (nodes, in delivery order)
	mu         sync.Mutex
	passivated []string
}

func (f *recordingFactory) CreateEntity(entityID string) actor.Actor {
	return actor.ActorFunc(func(_ *actor.Context, msg interface{}) actor.Result {
		prev, _ := f.deliveries.LoadOrStore(entityID, []string{})
		f.deliveries.Store(entityID, append(prev.([]string), f.node))
		return actor.Handled
	})
}

func (f *recordingFactory) OnPassivate(entityID string) {
	f.mu.Lock()
	f.passivated = append(f.passivated, entityID)
	f.mu.Unlock()
}

// node bundles one simulated cluster member.
type node struct {
	member   membership.Member
	sys      *system.ActorSystem
	provider *membership.StaticProvider
	region   *Region
	factory  *recordingFactory
}

func startNode(t *testing.T, net *memNetwork, name string, deliveries *sync.Map, peers []membership.Member) *node {
	t.Helper()

	member := membership.Member{ID: membership.NodeID(name), Address: name, Status: membership.StatusUp}
	sys := system.New(name, system.Config{Tick: 5 * time.Millisecond})
	provider := membership.NewStaticProvider(member)
	for _, p := range peers {
		if p.ID != member.ID {
			provider.Join(p)
		}
	}

	transport := net.transport(member.ID)
	sys.BindRemote(transport)

	factory := &recordingFactory{node: name, deliveries: deliveries}
	region, err := Start(sys, Config{
		TypeName:   "game",
		Factory:    factory,
		Provider:   provider,
		Transport:  transport,
		ShardCount: 8,
	})
	require.NoError(t, err)

	n := &node{member: member, sys: sys, provider: provider, region: region, factory: factory}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Terminate(ctx)
	})
	return n
}

func entityIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "e" + strconv.Itoa(i)
	}
	return out
}

func deliveredOnce(deliveries *sync.Map, id string, round int) (string, bool) {
	v, ok := deliveries.Load(id)
	if !ok {
		return "", false
	}
	nodes := v.([]string)
	if len(nodes) != round {
		return "", false
	}
	return nodes[len(nodes)-1], true
}

func TestSingleNodeLazySpawnAndLocalDelivery(t *testing.T) {
	net := newMemNetwork()
	deliveries := &sync.Map{}
	n := startNode(t, net, "solo", deliveries, nil)

	n.region.Ref("alpha").Tell("hello", actor.NoSender)

	require.Eventually(t, func() bool {
		node, ok := deliveredOnce(deliveries, "alpha", 1)
		return ok && node == "solo"
	}, 2*time.Second, 10*time.Millisecond)

	// The entity actor exists at its hierarchical path.
	require.Eventually(t, func() bool {
		_, ok := n.sys.Find(n.region.entityPath("alpha"))
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRebalanceOnJoinMatchesPureAllocation(t *testing.T) {
	net := newMemNetwork()
	deliveries := &sync.Map{}

	m := func(name string) membership.Member {
		return membership.Member{ID: membership.NodeID(name), Address: name, Status: membership.StatusUp}
	}
	threeView := []membership.Member{m("n1"), m("n2"), m("n3")}

	nodes := []*node{
		startNode(t, net, "n1", deliveries, threeView),
		startNode(t, net, "n2", deliveries, threeView),
		startNode(t, net, "n3", deliveries, threeView),
	}

	ids := entityIDs(32)

	// Round 1: deliver one message per entity through node n1's region.
	for _, id := range ids {
		nodes[0].region.Ref(id).Tell("round-1", actor.NoSender)
	}
	for _, id := range ids {
		id := id
		require.Eventually(t, func() bool {
			_, ok := deliveredOnce(deliveries, id, 1)
			return ok
		}, 5*time.Second, 10*time.Millisecond, "entity %s round 1", id)
	}

	// Owners must agree with the table every node derived from the
	// 3-node view.
	for _, id := range ids {
		owner, _ := deliveredOnce(deliveries, id, 1)
		want := nodes[0].region.Table().Owner(Of(id, 8))
		require.Equal(t, string(want), owner, "entity %s landed off-owner", id)
	}

	// A 4th node joins: every provider learns of it, and the new node's
	// own view includes everyone.
	fourView := append(threeView, m("n4"))
	n4 := startNode(t, net, "n4", deliveries, fourView)
	for _, n := range nodes {
		n.provider.Join(m("n4"))
	}
	nodes = append(nodes, n4)

	// Round 2: re-resolve every entity through the region immediately
	// after the rebalance began; each message is delivered exactly once.
	for _, id := range ids {
		nodes[1].region.Ref(id).Tell("round-2", actor.NoSender)
	}
	for _, id := range ids {
		id := id
		require.Eventually(t, func() bool {
			_, ok := deliveredOnce(deliveries, id, 2)
			return ok
		}, 5*time.Second, 10*time.Millisecond, "entity %s round 2", id)
	}

	// The settled owner map equals the pure allocation over four nodes.
	vn := nodes[1].region.cfg.VirtualNodes
	want := Allocate(fourView, 8, vn)
	for _, id := range ids {
		owner, _ := deliveredOnce(deliveries, id, 2)
		require.Equal(t, string(want.Owner(Of(id, 8))), owner,
			"entity %s not on its allocated owner after rebalance", id)
	}
}

func TestIdlePassivationStopsEntities(t *testing.T) {
	net := newMemNetwork()
	deliveries := &sync.Map{}

	member := membership.Member{ID: "lone", Address: "lone", Status: membership.StatusUp}
	sys := system.New("lone", system.Config{Tick: 5 * time.Millisecond})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Terminate(ctx)
	})

	factory := &recordingFactory{node: "lone", deliveries: deliveries}
	region, err := Start(sys, Config{
		TypeName:    "idle",
		Factory:     factory,
		Provider:    membership.NewStaticProvider(member),
		Transport:   net.transport(member.ID),
		ShardCount:  8,
		Passivation: Passivation{IdleTimeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	region.Ref("sleepy").Tell("wake", actor.NoSender)
	require.Eventually(t, func() bool {
		_, ok := deliveredOnce(deliveries, "sleepy", 1)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		factory.mu.Lock()
		defer factory.mu.Unlock()
		return len(factory.passivated) == 1 && factory.passivated[0] == "sleepy"
	}, 3*time.Second, 10*time.Millisecond)

	// A later delivery re-creates the entity on demand.
	region.Ref("sleepy").Tell("wake again", actor.NoSender)
	require.Eventually(t, func() bool {
		_, ok := deliveredOnce(deliveries, "sleepy", 2)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
