package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmdscript/cmdscript/core/logger"
	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
	"github.com/cmdscript/cmdscript/core/script"
	"github.com/cmdscript/cmdscript/infra/logsink"
	"github.com/cmdscript/cmdscript/infra/metrics"
	"github.com/cmdscript/cmdscript/internal/eventbus"
)

// State is the engine lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session-state markers appended to every bound log file, carried over
// unchanged so existing log consumers keep working.
const (
	markerConnected = "-- MQTT Connected --"
	markerRestored  = "-- MQTT Connected (Communication Restored) --"
	markerLost      = "-- MQTT Communication Lost --"
)

// subscription is a standing SUB registration.
type subscription struct {
	qos     byte
	topic   string
	logFile string
}

// Engine drives a command sequence against a session. Commands run in
// strict source order on the Run goroutine; subscription dispatch and
// periodic publishing run concurrently and survive past the end of the
// sequence.
type Engine struct {
	session coremqtt.Session
	sink    *logsink.Sink
	msgs    *eventbus.Bus[coremqtt.Message]
	links   *eventbus.Bus[coremqtt.LinkEvent]
	log     logger.Logger
	stats   *metrics.Collector

	state atomic.Int32
	tasks *taskRegistry
	wg    sync.WaitGroup

	mu     sync.Mutex
	subs   []subscription
	routes map[string][]string // topic filter -> log files
	// sessionLive tracks the scripted session: set by a successful
	// CONNECT, cleared only by a scripted DISCONNECT. Link loss does not
	// clear it; that path stays best-effort.
	sessionLive bool
	linkLost    bool
}

// New creates an idle engine. The message and link buses must be the
// ones the session adapter delivers on.
func New(session coremqtt.Session, sink *logsink.Sink,
	msgs *eventbus.Bus[coremqtt.Message], links *eventbus.Bus[coremqtt.LinkEvent],
	log logger.Logger, stats *metrics.Collector) *Engine {
	return &Engine{
		session: session,
		sink:    sink,
		msgs:    msgs,
		links:   links,
		log:     log,
		stats:   stats,
		tasks:   newTaskRegistry(),
		routes:  make(map[string][]string),
	}
}

// State reports the current lifecycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Run executes steps in order, then drains: with standing subscriptions
// or periodic tasks it blocks until ctx is cancelled, otherwise it
// terminates immediately. Shutdown is orderly either way: periodic
// tasks are cancelled, the session disconnected and the dispatcher
// flushed. A cancelled ctx is a clean exit, not an error.
func (e *Engine) Run(ctx context.Context, steps []script.Command) error {
	e.state.Store(int32(StateRunning))
	msgCh := e.msgs.Subscribe()
	linkCh := e.links.Subscribe()
	e.wg.Add(1)
	go e.dispatch(msgCh, linkCh)

	var runErr error
	for _, cmd := range steps {
		if ctx.Err() != nil {
			break
		}
		if err := e.execute(ctx, cmd); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && ctx.Err() == nil {
		e.state.Store(int32(StateDraining))
		if subs, tasks := e.standing(); subs+tasks > 0 {
			e.log.Infof("command sequence done, %d subscription(s) and %d periodic task(s) standing, running until interrupted", subs, tasks)
			<-ctx.Done()
		}
	}

	e.tasks.stopAll()
	e.session.Disconnect()
	// the adapter emits no further events after Disconnect; unsubscribing
	// closes the channels and lets the dispatcher drain what is buffered
	e.msgs.Unsubscribe(msgCh)
	e.links.Unsubscribe(linkCh)
	e.wg.Wait()
	e.state.Store(int32(StateTerminated))
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}
	return runErr
}

func (e *Engine) standing() (subs, tasks int) {
	e.mu.Lock()
	subs = len(e.subs)
	e.mu.Unlock()
	return subs, e.tasks.active()
}

// execute runs one command. A returned error is fatal to the run; soft
// failures (publish, subscribe setup, log writes) are logged and
// counted here instead.
func (e *Engine) execute(ctx context.Context, cmd script.Command) error {
	switch c := cmd.(type) {
	case script.Connect:
		return e.connect(c)
	case script.Disconnect:
		if !e.hasSession() {
			return fmt.Errorf("line %d: DISCONNECT: %w", c.Line(), ErrNoSession)
		}
		e.log.Infof("disconnect")
		e.session.Disconnect()
		e.mu.Lock()
		e.sessionLive = false
		e.mu.Unlock()
	case script.Pub:
		if !e.hasSession() {
			return fmt.Errorf("line %d: PUB: %w", c.Line(), ErrNoSession)
		}
		if err := e.session.Publish(c.Topic, c.QoS, c.Payload); err != nil {
			e.stats.PublishErrors.Inc()
			e.log.Warnf("publish %s: %v", c.Topic, err)
			return nil
		}
		e.stats.Published.Inc()
		e.log.Infof("published qos=%d topic=%s payload=%s", c.QoS, c.Topic, c.Payload)
	case script.Sub:
		if !e.hasSession() {
			return fmt.Errorf("line %d: SUB: %w", c.Line(), ErrNoSession)
		}
		if err := e.session.Subscribe(c.Topic, c.QoS); err != nil {
			e.log.Warnf("subscribe %s: %v", c.Topic, err)
			return nil
		}
		e.mu.Lock()
		e.subs = append(e.subs, subscription{qos: c.QoS, topic: c.Topic, logFile: c.LogFile})
		e.routes[c.Topic] = append(e.routes[c.Topic], c.LogFile)
		e.mu.Unlock()
		e.log.Infof("subscribed qos=%d topic=%s log=%s", c.QoS, c.Topic, c.LogFile)
	case script.PubEach:
		e.tasks.add(c)
		e.log.Infof("registered periodic publish every %s topic=%s", c.Interval, c.Topic)
		if e.session.IsConnected() {
			e.startTasks()
		}
	case script.Delay:
		e.log.Infof("delay %s", c.Duration)
		timer := time.NewTimer(c.Duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	default:
		if script.IsConnectionConfig(cmd) {
			return fmt.Errorf("line %d: %s: %w", cmd.Line(), script.Keyword(cmd), ErrConfigAfterConnect)
		}
		return fmt.Errorf("line %d: unsupported command %s", cmd.Line(), script.Keyword(cmd))
	}
	return nil
}

// connect establishes the session. Failure is fatal: the script cannot
// proceed without a session. On a scripted re-CONNECT the standing
// subscriptions are re-registered, since a clean session forgets them.
func (e *Engine) connect(c script.Connect) error {
	e.log.Infof("connecting to %s:%d", c.Host, c.Port)
	if err := e.session.Connect(c.Host, c.Port); err != nil {
		return fmt.Errorf("line %d: %w", c.Line(), err)
	}
	e.mu.Lock()
	e.sessionLive = true
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()
	for _, sub := range subs {
		if err := e.session.Subscribe(sub.topic, sub.qos); err != nil {
			e.log.Warnf("resubscribe %s: %v", sub.topic, err)
		}
	}
	e.startTasks()
	return nil
}

func (e *Engine) startTasks() {
	e.tasks.startPending(e.session.Publish, e.log, e.stats.PeriodicTicks.Inc)
}

func (e *Engine) hasSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionLive
}
