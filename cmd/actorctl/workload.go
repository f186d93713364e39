package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/shard"
	"github.com/actorforge/actorcore/logger"
	"github.com/actorforge/actorcore/system"
)

// The workload gives the introspection commands something real to look at:
// a pool of echo workers kept busy by scheduled ticks, plus a single-node
// shard region with lazily spawned session entities.

type echoWorker struct{}

func (echoWorker) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	switch m := msg.(type) {
	case string:
		ctx.Reply("echo:" + m)
		return actor.Handled
	case tick:
		return actor.Handled
	}
	return actor.Unhandled
}

type tick struct{}

type sessionEntity struct {
	id    string
	seen  int
	start time.Time
}

func (s *sessionEntity) PreStart(*actor.Context) error {
	s.start = time.Now()
	return nil
}

func (s *sessionEntity) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	s.seen++
	if ctx.Sender() != actor.NoSender {
		ctx.Reply(fmt.Sprintf("session %s handled %d", s.id, s.seen))
	}
	return actor.Handled
}

type sessionFactory struct{}

func (sessionFactory) CreateEntity(entityID string) actor.Actor {
	return &sessionEntity{id: entityID}
}

func (sessionFactory) OnPassivate(string) {}

// demoWorkload holds the running sample system.
type demoWorkload struct {
	sys    *system.ActorSystem
	region *shard.Region
}

// startWorkload boots a system with workers and a shard region and starts
// background traffic so gauges move.
func startWorkload(workers int) (*demoWorkload, error) {
	sys := system.New("actorctl-demo", system.Config{
		Logger: logger.New(slog.LevelWarn, os.Stderr),
	})

	refs := make([]actor.Ref, 0, workers)
	for i := 0; i < workers; i++ {
		ref, err := sys.Spawn(actor.FromProducer(func() actor.Actor { return echoWorker{} }),
			"worker-"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	for i, ref := range refs {
		sys.Scheduler().ScheduleAtFixedRate(
			time.Duration(i)*7*time.Millisecond, 50*time.Millisecond, ref, tick{})
	}

	self := membership.Member{ID: membership.NewNodeID(), Address: "local"}
	region, err := shard.Start(sys, shard.Config{
		TypeName: "session",
		Factory:  sessionFactory{},
		Provider: membership.NewStaticProvider(self),
		Passivation: shard.Passivation{
			IdleTimeout: 30 * time.Second,
			MaxEntities: 256,
		},
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for i := 0; ; i++ {
			region.Ref("session-"+strconv.Itoa(i%32)).Tell(struct{}{}, actor.NoSender)
			time.Sleep(25 * time.Millisecond)
		}
	}()

	return &demoWorkload{sys: sys, region: region}, nil
}
