package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/supervisor"
)

func newTestSystem(t *testing.T) *ActorSystem {
	t.Helper()
	sys := New("test", Config{Tick: 5 * time.Millisecond})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sys.Terminate(ctx))
	})
	return sys
}

func awaitResult(t *testing.T, fut *actor.Future, within time.Duration) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	return fut.Result(ctx)
}

func TestAskReplyHappyPath(t *testing.T) {
	sys := newTestSystem(t)

	echo, err := sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		if s, ok := msg.(string); ok {
			ctx.Reply("echo:" + s)
			return actor.Handled
		}
		return actor.Unhandled
	}), "echo")
	require.NoError(t, err)

	value, err := awaitResult(t, sys.Ask(echo, "hi", time.Second), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "echo:hi", value)
}

func TestAskTimeoutAndLateReplyDeadLetters(t *testing.T) {
	sys := newTestSystem(t)

	var captured actor.Ref
	ready := make(chan struct{})
	blackhole, err := sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		captured = ctx.Sender()
		close(ready)
		return actor.Handled
	}), "blackhole")
	require.NoError(t, err)

	fut := sys.Ask(blackhole, "x", 50*time.Millisecond)
	_, err = awaitResult(t, fut, time.Second)
	require.ErrorIs(t, err, actor.ErrAskTimeout)

	// A reply after the timeout must land in dead letters, not complete
	// the future.
	<-ready
	captured.Tell("x", actor.NoSender)
	require.Eventually(t, func() bool {
		for _, d := range sys.RecentDeadLetters() {
			if d.Reason == "ask-expired" && d.Message == "x" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAskCancelIsIdempotent(t *testing.T) {
	sys := newTestSystem(t)

	sink, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Handled
	}), "quiet")
	require.NoError(t, err)

	fut := sys.Ask(sink, "never answered", time.Minute)
	require.True(t, fut.Cancel())
	require.False(t, fut.Cancel())

	_, err = awaitResult(t, fut, time.Second)
	require.ErrorIs(t, err, actor.ErrAskCancelled)
}

// crashable replies to "ping", panics on "crash", and reports every fresh
// instance so the test can count restarts: the first from PreStart, each
// restarted one from PostRestart (a restarted instance does not run
// PreStart).
type crashable struct {
	born chan<- struct{}
}

func (c *crashable) PreStart(*actor.Context) error {
	c.born <- struct{}{}
	return nil
}

func (c *crashable) PostRestart(*actor.Context, error) {
	c.born <- struct{}{}
}

func (c *crashable) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	switch msg {
	case "ping":
		ctx.Reply("pong")
		return actor.Handled
	case "crash":
		panic(errors.New("induced crash"))
	}
	return actor.Unhandled
}

// parentActor spawns one crashable child and reports every Failed notice it
// is shown, whether the directive was a restart or an escalation.
type parentActor struct {
	born   chan<- struct{}
	failed chan<- error
	child  actor.Ref
}

func (p *parentActor) PreStart(ctx *actor.Context) error {
	ref, err := ctx.Spawn(actor.Props{
		Producer: func() actor.Actor { return &crashable{born: p.born} },
	}, "child")
	if err != nil {
		return err
	}
	p.child = ref
	return nil
}

func (p *parentActor) Receive(ctx *actor.Context, msg interface{}) actor.Result {
	switch m := msg.(type) {
	case actor.Failed:
		p.failed <- m.Cause
		return actor.Handled
	case string:
		if m == "child" {
			ctx.Reply(p.child)
			return actor.Handled
		}
	}
	return actor.Unhandled
}

func TestRestartPreservesRefAndEscalatesPastBudget(t *testing.T) {
	sys := newTestSystem(t)

	born := make(chan struct{}, 16)
	failed := make(chan error, 16)

	strat := supervisor.Strategy{
		Kind:         supervisor.OneForOne,
		Decider:      supervisor.DefaultDecider,
		MaxRetries:   3,
		WithinWindow: 10 * time.Second,
	}
	parent, err := sys.Spawn(actor.Props{
		Producer: func() actor.Actor { return &parentActor{born: born, failed: failed} },
		Strategy: &strat,
	}, "parent")
	require.NoError(t, err)

	// First incarnation of the child.
	select {
	case <-born:
	case <-time.After(time.Second):
		t.Fatal("child never started")
	}

	childAny, err := awaitResult(t, sys.Ask(parent, "child", time.Second), 2*time.Second)
	require.NoError(t, err)
	child := childAny.(actor.Ref)
	origUid := child.Uid()
	origPath := child.Path()

	// Three crashes inside the window: three restarts, ref unchanged.
	for i := 0; i < 3; i++ {
		child.Tell("crash", actor.NoSender)
		select {
		case <-born:
		case <-time.After(2 * time.Second):
			t.Fatalf("restart %d did not produce a fresh instance", i+1)
		}
	}
	require.Equal(t, origPath, child.Path())
	require.Equal(t, origUid, child.Uid())

	// The held ref still delivers after the restarts.
	value, err := awaitResult(t, sys.Ask(child, "ping", time.Second), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong", value)

	// The parent was shown a Failed after each of the three restarts;
	// drain those so the check below sees the escalated one.
	for i := 0; i < 3; i++ {
		select {
		case <-failed:
		case <-time.After(2 * time.Second):
			t.Fatalf("restart %d was not reported to the parent", i+1)
		}
	}

	// Fourth crash inside the same window exhausts the budget: the
	// parent observes the Failed it escalates.
	child.Tell("crash", actor.NoSender)
	select {
	case cause := <-failed:
		require.ErrorContains(t, cause, "induced crash")
	case <-time.After(2 * time.Second):
		t.Fatal("escalation never surfaced to the parent")
	}
}

func TestPerPairFIFOUnderContention(t *testing.T) {
	sys := newTestSystem(t)

	const total = 10000
	done := make(chan []int, 1)

	recorded := make([]int, 0, total)
	sink, err := sys.Spawn(actor.Props{
		Producer: func() actor.Actor {
			return actor.ActorFunc(func(_ *actor.Context, msg interface{}) actor.Result {
				n := msg.(int)
				recorded = append(recorded, n)
				if len(recorded) == total {
					done <- recorded
				}
				return actor.Handled
			})
		},
		MailboxCapacity: -1,
	}, "sink")
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		sink.Tell(i, actor.NoSender)
	}

	select {
	case got := <-done:
		for i, n := range got {
			require.Equal(t, i, n, "message order diverged at index %d", i)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("sink received %d of %d messages", len(recorded), total)
	}
}

func TestBecomeUnbecomeRoundTrip(t *testing.T) {
	sys := newTestSystem(t)

	ref, err := sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		switch msg {
		case "mode":
			ctx.Reply("base")
		case "push":
			ctx.Become(func(ctx *actor.Context, msg interface{}) actor.Result {
				switch msg {
				case "mode":
					ctx.Reply("pushed")
				case "pop":
					ctx.Unbecome()
				}
				return actor.Handled
			})
		}
		return actor.Handled
	}), "modal")
	require.NoError(t, err)

	mode := func() string {
		v, err := awaitResult(t, sys.Ask(ref, "mode", time.Second), 2*time.Second)
		require.NoError(t, err)
		return v.(string)
	}

	require.Equal(t, "base", mode())
	ref.Tell("push", actor.NoSender)
	require.Equal(t, "pushed", mode())
	ref.Tell("pop", actor.NoSender)
	require.Equal(t, "base", mode())
}

func TestWatchDeliversTerminatedOnce(t *testing.T) {
	sys := newTestSystem(t)

	target, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Handled
	}), "short-lived")
	require.NoError(t, err)

	notices := make(chan actor.Ref, 4)
	_, err = sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		switch m := msg.(type) {
		case string:
			// watch twice: the subscription is a set operation.
			ctx.Watch(target)
			ctx.Watch(target)
			ctx.Reply("watching")
		case actor.Terminated:
			notices <- m.Ref
		}
		return actor.Handled
	}), "watcher")
	require.NoError(t, err)

	watcher, ok := sys.Find("/user/watcher")
	require.True(t, ok)
	_, err = awaitResult(t, sys.Ask(watcher, "go", time.Second), 2*time.Second)
	require.NoError(t, err)

	sys.Stop(target)

	select {
	case ref := <-notices:
		require.True(t, actor.Equals(ref, target))
	case <-time.After(2 * time.Second):
		t.Fatal("Terminated never delivered")
	}
	select {
	case <-notices:
		t.Fatal("Terminated delivered more than once")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchAfterStopDeliversImmediately(t *testing.T) {
	sys := newTestSystem(t)

	target, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Handled
	}), "already-gone")
	require.NoError(t, err)

	sys.Stop(target)
	require.Eventually(t, func() bool {
		_, ok := sys.Find("/user/already-gone")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	notices := make(chan actor.Ref, 1)
	_, err = sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		switch m := msg.(type) {
		case string:
			ctx.Watch(target)
		case actor.Terminated:
			notices <- m.Ref
		}
		return actor.Handled
	}), "late-watcher")
	require.NoError(t, err)

	late, ok := sys.Find("/user/late-watcher")
	require.True(t, ok)
	late.Tell("watch now", actor.NoSender)

	select {
	case ref := <-notices:
		require.True(t, actor.Equals(ref, target))
	case <-time.After(2 * time.Second):
		t.Fatal("watch of a stopped ref did not deliver Terminated")
	}
}

func TestSpawnNameConflict(t *testing.T) {
	sys := newTestSystem(t)

	props := actor.FromFunc(func(*actor.Context, interface{}) actor.Result { return actor.Handled })
	_, err := sys.Spawn(props, "taken")
	require.NoError(t, err)

	_, err = sys.Spawn(props, "taken")
	require.ErrorIs(t, err, actor.ErrNameInUse)
}

func TestDeadLetterCompleteness(t *testing.T) {
	sys := newTestSystem(t)

	// Unhandled message.
	picky, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Unhandled
	}), "picky")
	require.NoError(t, err)
	picky.Tell("nope", actor.NoSender)

	// Message to a stopped ref.
	gone, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Handled
	}), "gone")
	require.NoError(t, err)
	sys.Stop(gone)
	require.Eventually(t, func() bool {
		_, ok := sys.Find("/user/gone")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	gone.Tell("too late", actor.NoSender)

	// Mailbox overflow: capacity 1 with a handler that blocks until
	// released.
	release := make(chan struct{})
	started := make(chan struct{})
	slow, err := sys.Spawn(actor.Props{
		Producer: func() actor.Actor {
			return actor.ActorFunc(func(_ *actor.Context, msg interface{}) actor.Result {
				if msg == "block" {
					close(started)
					<-release
				}
				return actor.Handled
			})
		},
		MailboxCapacity: 1,
	}, "narrow")
	require.NoError(t, err)
	slow.Tell("block", actor.NoSender)
	<-started
	slow.Tell("fits", actor.NoSender)
	for i := 0; i < 8; i++ {
		slow.Tell("overflow", actor.NoSender)
	}
	close(release)

	require.Eventually(t, func() bool {
		reasons := map[string]bool{}
		for _, d := range sys.RecentDeadLetters() {
			reasons[d.Reason] = true
		}
		return reasons["unhandled"] && reasons["stale-ref"] && reasons["mailbox-full"]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeToDeliversResultAsMessage(t *testing.T) {
	sys := newTestSystem(t)

	echo, err := sys.Spawn(actor.FromFunc(func(ctx *actor.Context, msg interface{}) actor.Result {
		if s, ok := msg.(string); ok && s != "" {
			ctx.Reply("echo:" + s)
		}
		return actor.Handled
	}), "pipe-echo")
	require.NoError(t, err)

	got := make(chan interface{}, 1)
	collector, err := sys.Spawn(actor.FromFunc(func(_ *actor.Context, msg interface{}) actor.Result {
		got <- msg
		return actor.Handled
	}), "collector")
	require.NoError(t, err)

	actor.PipeTo(sys.Ask(echo, "pipe", time.Second), collector, actor.NoSender)

	select {
	case v := <-got:
		require.Equal(t, "echo:pipe", v)
	case <-time.After(2 * time.Second):
		t.Fatal("piped result never arrived")
	}
}

func TestIntrospectionListsGuardians(t *testing.T) {
	sys := newTestSystem(t)

	_, err := sys.Spawn(actor.FromFunc(func(*actor.Context, interface{}) actor.Result {
		return actor.Handled
	}), "visible")
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, info := range sys.ListActors() {
		paths[info.Path] = true
	}
	require.True(t, paths["/"], "root guardian missing")
	require.True(t, paths["/user"], "user guardian missing")
	require.True(t, paths["/system"], "system guardian missing")
	require.True(t, paths["/user/visible"])
}

func TestTerminateStopsEverythingWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	sys := New("leakcheck", Config{Tick: 5 * time.Millisecond})

	stopped := make(chan struct{}, 8)
	for i := 0; i < 4; i++ {
		_, err := sys.Spawn(actor.Props{
			Producer: func() actor.Actor {
				return &stopObserver{stopped: stopped}
			},
		}, "")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Terminate(ctx))
	require.Len(t, stopped, 4, "every actor should run PostStop during shutdown")
}

type stopObserver struct {
	stopped chan<- struct{}
}

func (s *stopObserver) Receive(*actor.Context, interface{}) actor.Result { return actor.Handled }
func (s *stopObserver) PostStop(*actor.Context)                          { s.stopped <- struct{}{} }
