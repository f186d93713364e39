// Package system assembles the runtime: dispatchers, scheduler, guardians,
// the dead-letter sink, and the registry that makes paths resolvable. An
// ActorSystem is a self-contained namespace; multiple systems may coexist
// in one process with fully isolated lifecycles; nothing in this module is a
// process-level singleton.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actorforge/actorcore/actor"
	"github.com/actorforge/actorcore/dispatch"
	"github.com/actorforge/actorcore/message"
	"github.com/actorforge/actorcore/observability"
	"github.com/actorforge/actorcore/scheduler"
	"github.com/actorforge/actorcore/supervisor"
)

// ErrTerminateTimeout is returned by Terminate when the actor tree did not
// finish stopping within the caller's deadline. Dispatchers and timers are
// torn down regardless.
var ErrTerminateTimeout = errors.New("system: terminate deadline exceeded")

const (
	// DefaultDispatcherName is the dispatcher cells run on unless pinned.
	DefaultDispatcherName = "default"
	// SystemDispatcherName runs guardian and internal actors on its own
	// small pool so heavy user dispatchers cannot starve lifecycle
	// progress.
	SystemDispatcherName = "system"
)

// ActorSystem is the root object of one actor namespace. Construct with New,
// spawn user actors with Spawn, and tear down with Terminate.
type ActorSystem struct {
	name string
	cfg  Config

	uidGen actor.UidGenerator

	dispMu      sync.Mutex
	dispatchers map[string]*dispatch.Dispatcher

	sched *scheduler.Scheduler

	deadRef actor.Ref
	deadLog *deadLetterLog

	regMu    sync.Mutex
	registry map[string]*actor.Cell

	liveCells sync.WaitGroup

	root         *actor.Cell
	userGuardian *actor.Cell
	sysGuardian  *actor.Cell

	terminating atomic.Bool
	escalateOne sync.Once
}

// guardianActor is the behavior of the root, /user and /system guardians:
// it never handles user messages itself, it only exists to own children and
// apply a supervision strategy to them.
type guardianActor struct{}

func (guardianActor) Receive(*actor.Context, interface{}) actor.Result { return actor.Unhandled }

// New boots an actor system: dispatchers started, scheduler running,
// guardian hierarchy in place. The returned system is ready to Spawn.
func New(name string, cfg Config) *ActorSystem {
	cfg = cfg.withDefaults()

	sys := &ActorSystem{
		name:        name,
		cfg:         cfg,
		dispatchers: make(map[string]*dispatch.Dispatcher),
		deadLog:     newDeadLetterLog(),
		registry:    make(map[string]*actor.Cell),
		sched:       scheduler.New(cfg.Tick),
	}
	sys.deadRef = &deadLetterRef{sys: sys}

	sys.addDispatcher(dispatch.Config{
		Name:        DefaultDispatcherName,
		Parallelism: cfg.DefaultParallelism,
		Throughput:  cfg.Throughput,
	})
	sys.addDispatcher(dispatch.Config{
		Name:        SystemDispatcherName,
		Parallelism: 2,
		Throughput:  cfg.Throughput,
	})
	sys.sched.Start()

	// Escalation past the root guardian is terminal: its decider stops
	// the failing guardian, and EscalateFromRoot shuts the system down.
	rootStrategy := &supervisor.Strategy{
		Kind: supervisor.OneForOne,
		Decider: func(error, interface{}) supervisor.Directive {
			return supervisor.Stop
		},
	}
	sys.root = actor.NewRootCell(sys, actor.Props{
		Producer:   func() actor.Actor { return guardianActor{} },
		Dispatcher: SystemDispatcherName,
		Strategy:   rootStrategy,
	})

	sys.userGuardian = sys.mustGuardian("user", supervisor.DefaultStrategy())
	sys.sysGuardian = sys.mustGuardian("system", supervisor.DefaultStrategy())

	cfg.Logger.Info("actor system started",
		"system", name,
		"parallelism", cfg.DefaultParallelism,
		"throughput", cfg.Throughput)
	return sys
}

func (sys *ActorSystem) mustGuardian(name string, strat supervisor.Strategy) *actor.Cell {
	ref, err := sys.root.Spawn(actor.Props{
		Producer:   func() actor.Actor { return guardianActor{} },
		Dispatcher: SystemDispatcherName,
		Strategy:   &strat,
	}, name)
	if err != nil {
		panic(fmt.Sprintf("system: spawning /%s guardian: %v", name, err))
	}
	cell, ok := sys.lookupCell(ref.Path())
	if !ok {
		panic(fmt.Sprintf("system: /%s guardian not registered", name))
	}
	return cell
}

// Name returns the system's name.
func (sys *ActorSystem) Name() string { return sys.name }

// Configured returns the effective config after defaulting.
func (sys *ActorSystem) Configured() Config { return sys.cfg }

// Scheduler returns the system timer service.
func (sys *ActorSystem) Scheduler() *scheduler.Scheduler { return sys.sched }

// Spawn creates a top-level user actor under /user.
func (sys *ActorSystem) Spawn(props actor.Props, name string) (actor.Ref, error) {
	return sys.userGuardian.Spawn(props, name)
}

// SpawnInternal creates an actor under /system, on the system dispatcher by
// default. Used by the runtime's own services (router watchers and pool
// routers).
func (sys *ActorSystem) SpawnInternal(props actor.Props, name string) (actor.Ref, error) {
	if props.Dispatcher == "" {
		props.Dispatcher = SystemDispatcherName
	}
	return sys.sysGuardian.Spawn(props, name)
}

// Stop asks any actor to stop. Termination is observable via Watch from
// inside another actor.
func (sys *ActorSystem) Stop(ref actor.Ref) {
	ref.SendSystem(actor.StopCommand())
}

// Ask sends msg to target with a transient reply ref and returns the future
// for the first reply. timeout <= 0 uses the configured default.
func (sys *ActorSystem) Ask(target actor.Ref, msg interface{}, timeout time.Duration) *actor.Future {
	if timeout <= 0 {
		timeout = sys.cfg.AskTimeout
	}
	return actor.Ask(sys, target, msg, timeout)
}

// UserRef returns the /user guardian's ref.
func (sys *ActorSystem) UserRef() actor.Ref { return sys.userGuardian.Ref() }

// SystemRef returns the /system guardian's ref.
func (sys *ActorSystem) SystemRef() actor.Ref { return sys.sysGuardian.Ref() }

// DeadLetters returns the sink ref: it accepts and records every message.
func (sys *ActorSystem) DeadLetters() actor.Ref { return sys.deadRef }

// RecentDeadLetters returns the bounded log of recent dead letters, oldest
// first.
func (sys *ActorSystem) RecentDeadLetters() []DeadLetter { return sys.deadLog.recent() }

// Find resolves a live actor by full path, e.g. "/user/worker". The second
// result is false when no cell is registered there.
func (sys *ActorSystem) Find(path string) (actor.Ref, bool) {
	cell, ok := sys.lookupCell(path)
	if !ok {
		return nil, false
	}
	return cell.Ref(), true
}

// ActorInfo is one row of the system's introspection listing.
type ActorInfo struct {
	Path        string
	Uid         uint64
	State       string
	MailboxSize int
}

// ListActors enumerates every registered cell, sorted by path.
func (sys *ActorSystem) ListActors() []ActorInfo {
	sys.regMu.Lock()
	infos := make([]ActorInfo, 0, len(sys.registry))
	for _, cell := range sys.registry {
		infos = append(infos, ActorInfo{
			Path:        cell.PathValue().String(),
			Uid:         cell.Uid(),
			State:       cell.State().String(),
			MailboxSize: cell.MailboxSize(),
		})
	}
	sys.regMu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Terminate shuts the system down: timers cancelled, actors stopped
// top-down from the root, then dispatchers drained. It waits for the tree
// to finish within ctx's deadline and returns ErrTerminateTimeout when it
// does not.
func (sys *ActorSystem) Terminate(ctx context.Context) error {
	if !sys.terminating.CompareAndSwap(false, true) {
		return nil
	}
	sys.cfg.Logger.Info("actor system terminating", "system", sys.name)

	sys.sched.Stop()
	sys.root.Ref().SendSystem(actor.StopCommand())

	done := make(chan struct{})
	go func() {
		sys.liveCells.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ErrTerminateTimeout
	}

	sys.dispMu.Lock()
	disps := make([]*dispatch.Dispatcher, 0, len(sys.dispatchers))
	for _, d := range sys.dispatchers {
		disps = append(disps, d)
	}
	sys.dispMu.Unlock()
	for _, d := range disps {
		d.Stop()
	}

	sys.cfg.Logger.Info("actor system terminated", "system", sys.name, "clean", err == nil)
	return err
}

// RegisterDispatcher adds a named dispatcher cells can pin to via
// Props.Dispatcher. Registering an existing name replaces nothing and
// returns the existing dispatcher.
func (sys *ActorSystem) RegisterDispatcher(cfg dispatch.Config) *dispatch.Dispatcher {
	sys.dispMu.Lock()
	defer sys.dispMu.Unlock()
	if d, ok := sys.dispatchers[cfg.Name]; ok {
		return d
	}
	if cfg.Throughput <= 0 {
		cfg.Throughput = sys.cfg.Throughput
	}
	d := dispatch.New(cfg)
	d.Start()
	sys.dispatchers[cfg.Name] = d
	return d
}

func (sys *ActorSystem) addDispatcher(cfg dispatch.Config) {
	d := dispatch.New(cfg)
	d.Start()
	sys.dispMu.Lock()
	sys.dispatchers[cfg.Name] = d
	sys.dispMu.Unlock()
}

func (sys *ActorSystem) lookupCell(path string) (*actor.Cell, bool) {
	sys.regMu.Lock()
	defer sys.regMu.Unlock()
	cell, ok := sys.registry[path]
	return cell, ok
}

// --- actor.System implementation -----------------------------------------

// DeadLetter implements actor.System.
func (sys *ActorSystem) DeadLetter(env message.Envelope, reason string) {
	sys.cfg.Sink.IncMessagesDropped(reason)

	senderPath := ""
	if env.Sender != nil {
		senderPath = env.Sender.Path()
	}
	sys.deadLog.record(DeadLetter{
		Message:    env.Message,
		SenderPath: senderPath,
		Reason:     reason,
		At:         time.Now(),
	})
	sys.cfg.Logger.Debug("dead letter",
		"system", sys.name,
		"reason", reason,
		"sender", senderPath,
		"message", fmt.Sprintf("%T", env.Message))
}

// Sink implements actor.System.
func (sys *ActorSystem) Sink() observability.Sink { return sys.cfg.Sink }

// Logger implements actor.System.
func (sys *ActorSystem) Logger() *slog.Logger { return sys.cfg.Logger }

// NextUid implements actor.System.
func (sys *ActorSystem) NextUid() uint64 { return sys.uidGen.Next() }

// DispatcherByName implements actor.System: empty and unknown names resolve
// to the default dispatcher.
func (sys *ActorSystem) DispatcherByName(name string) *dispatch.Dispatcher {
	sys.dispMu.Lock()
	defer sys.dispMu.Unlock()
	if d, ok := sys.dispatchers[name]; ok {
		return d
	}
	return sys.dispatchers[DefaultDispatcherName]
}

// DefaultMailboxCapacity implements actor.System.
func (sys *ActorSystem) DefaultMailboxCapacity() int { return sys.cfg.DefaultMailboxCapacity }

// RegisterCell implements actor.System.
func (sys *ActorSystem) RegisterCell(c *actor.Cell) {
	sys.liveCells.Add(1)
	sys.regMu.Lock()
	sys.registry[c.PathValue().String()] = c
	n := len(sys.registry)
	sys.regMu.Unlock()
	sys.cfg.Sink.SetActiveActors(n)
}

// UnregisterCell implements actor.System. Only the registered incarnation
// unlinks; a later cell that reused the path is left alone.
func (sys *ActorSystem) UnregisterCell(c *actor.Cell) {
	sys.regMu.Lock()
	path := c.PathValue().String()
	if cur, ok := sys.registry[path]; ok && cur.Uid() == c.Uid() {
		delete(sys.registry, path)
	}
	n := len(sys.registry)
	sys.regMu.Unlock()
	sys.cfg.Sink.SetActiveActors(n)
	sys.liveCells.Done()
}

// Terminating implements actor.System.
func (sys *ActorSystem) Terminating() bool { return sys.terminating.Load() }

// EscalateFromRoot implements actor.System: a failure the root guardian
// could not absorb shuts the whole system down.
func (sys *ActorSystem) EscalateFromRoot(cause error) {
	sys.escalateOne.Do(func() {
		sys.cfg.Logger.Error("failure escalated past root guardian; shutting down",
			"system", sys.name,
			"error", cause)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = sys.Terminate(ctx)
		}()
	})
}
