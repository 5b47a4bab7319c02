package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/primitives"
)

var (
	ErrNotStarted = errors.New("coordinator not started")
	ErrClosed     = errors.New("coordinator closed")
	ErrQueueFull  = errors.New("event queue full (backpressure)")
)

// Persisted keys.
const (
	KeySessionFlag   = "is_tracking"
	KeyTrackingState = "state"
)

// Coordinator owns TrackingState, the session flag, the last location and
// the stationary timer. All of them are touched only by the interpret
// goroutine; public methods enqueue closures into it and wait.
type Coordinator struct {
	ports     Ports
	clock     clock.Clock
	log       *logrus.Entry
	cfg       settings
	guards    []Guard
	runner    CommandRunner
	sources   []EventSource
	publisher StatePublisher

	queue     chan func()
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	out       *outbox
	wg        sync.WaitGroup
	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once

	// loop-owned
	state        primitives.TrackingState
	session      bool
	epoch        uint64
	lastLocation *primitives.LocationSample
	timer        *clock.Timer
	timerGen     uint64
	geofences    map[primitives.GeofenceID]primitives.Geofence
	last         lastPlacement
}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	State        primitives.TrackingState
	Tracking     bool
	LastLocation *primitives.LocationSample
	TimerArmed   bool
	Geofences    []primitives.Geofence
}

// NewCoordinator builds a coordinator and loads the persisted state.
// A missing or unparsable state defaults to MOVING; a missing session flag
// defaults to false.
func NewCoordinator(ports Ports, opts ...Option) (*Coordinator, error) {
	if err := ports.validate(); err != nil {
		return nil, fmt.Errorf("invalid ports: %w", err)
	}
	if ports.Sink == nil {
		ports.Sink = discardSink{}
	}
	c := &Coordinator{
		ports:     ports,
		clock:     clock.New(),
		log:       logrus.WithField("component", "coordinator"),
		cfg:       defaultSettings(),
		runner:    DefaultCommandRunner{},
		done:      make(chan struct{}),
		out:       newOutbox(),
		geofences: map[primitives.GeofenceID]primitives.Geofence{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.guards = append([]Guard{confidenceGuard{threshold: c.cfg.confidenceThreshold}}, c.guards...)
	c.queue = make(chan func(), c.cfg.queueSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.load()
	return c, nil
}

// Start launches the serialized loop, the command runner and any event
// source pumps. Idempotent.
func (c *Coordinator) Start() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.interpret()
		go c.runCommands()
		for _, src := range c.sources {
			c.wg.Add(1)
			go c.pump(src)
		}
		c.started.Store(true)
	})
	return nil
}

// Close stops the loop and the runner. Commands still queued are dropped.
// Safe to call multiple times.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	c.wg.Wait()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.publisher != nil {
		return c.publisher.Close()
	}
	return nil
}

// interpret is the private serialized loop.
func (c *Coordinator) interpret() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.done:
			return
		}
	}
}

// do runs fn inside the serialized loop and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.queue <- wrapped:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post schedules a continuation. It must never be called from the loop.
func (c *Coordinator) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

// StartTracking arms the session. No-op while already tracking.
func (c *Coordinator) StartTracking(ctx context.Context) error {
	return c.do(ctx, func() { c.startTracking(false) })
}

// StopTracking tears the session down. Idempotent.
func (c *Coordinator) StopTracking(ctx context.Context) error {
	return c.do(ctx, c.stopTracking)
}

// ResumeIfPreviouslyTracking re-arms every subscription when the persisted
// session flag is set. It reports whether tracking was resumed.
func (c *Coordinator) ResumeIfPreviouslyTracking(ctx context.Context) (bool, error) {
	var resumed bool
	err := c.do(ctx, func() { resumed = c.resume() })
	return resumed, err
}

// HandleMotion feeds one motion transition.
func (c *Coordinator) HandleMotion(ctx context.Context, evt primitives.MotionEvent) error {
	return c.do(ctx, func() { c.onMotion(evt) })
}

// HandlePerimeterExit feeds one perimeter crossing.
func (c *Coordinator) HandlePerimeterExit(ctx context.Context, evt primitives.PerimeterEvent) error {
	return c.do(ctx, func() { c.onPerimeterExit(evt) })
}

// HandleLocation feeds one continuous position sample.
func (c *Coordinator) HandleLocation(ctx context.Context, sample primitives.LocationSample) error {
	return c.do(ctx, func() { c.onLocation(sample) })
}

// Send enqueues an enveloped event without waiting.
// Returns ErrQueueFull on backpressure.
func (c *Coordinator) Send(evt primitives.Event) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	fn, err := c.dispatch(evt)
	if err != nil {
		return err
	}
	select {
	case c.queue <- fn:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Coordinator) dispatch(evt primitives.Event) (func(), error) {
	switch data := evt.Data.(type) {
	case primitives.MotionEvent:
		return func() { c.onMotion(data) }, nil
	case primitives.PerimeterEvent:
		return func() { c.onPerimeterExit(data) }, nil
	case primitives.LocationSample:
		return func() { c.onLocation(data) }, nil
	}
	return nil, fmt.Errorf("event %q: unsupported payload %T", evt.Type, evt.Data)
}

// pump forwards an event source until it closes or the coordinator stops.
func (c *Coordinator) pump(src EventSource) {
	defer c.wg.Done()
	events := src.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			fn, err := c.dispatch(evt)
			if err != nil {
				c.log.WithError(err).Warn("dropping event")
				continue
			}
			c.post(fn)
		case <-c.done:
			return
		}
	}
}

// Status returns a snapshot taken inside the serialized loop.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, func() {
		st = Status{
			State:      c.state,
			Tracking:   c.session,
			TimerArmed: c.timer != nil,
		}
		if c.lastLocation != nil {
			loc := *c.lastLocation
			st.LastLocation = &loc
		}
		for _, g := range c.geofences {
			st.Geofences = append(st.Geofences, g)
		}
		sort.Slice(st.Geofences, func(i, j int) bool { return st.Geofences[i].ID < st.Geofences[j].ID })
	})
	return st, err
}

// Drain waits until every command enqueued before the call has executed.
func (c *Coordinator) Drain(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	barrier := make(chan struct{})
	c.out.push(queued{barrier: barrier})
	select {
	case <-barrier:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// issue enqueues a provider command. then, when set, runs back inside the
// loop once the command finished.
func (c *Coordinator) issue(name string, do func(ctx context.Context) error, then func(err error)) {
	c.out.push(queued{cmd: Command{Name: name, Do: do}, then: then})
}

// commandFailed classifies and records a provider failure. Never retried.
func (c *Coordinator) commandFailed(name string, err error) {
	entry := c.log.WithError(err).WithField("command", name)
	switch {
	case errors.Is(err, primitives.ErrPermissionDenied):
		entry.Info("command skipped")
		c.narrate(fmt.Sprintf("%s skipped: permission denied", name))
	case errors.Is(err, primitives.ErrExecutionRefused):
		entry.Warn("continuous execution refused")
	default:
		entry.Warn("command failed")
		c.narrate(fmt.Sprintf("%s failed: %v", name, err))
	}
}

// narrate appends to the observability log.
func (c *Coordinator) narrate(message string) {
	c.narrateAt(message, c.clock.Now())
}

func (c *Coordinator) narrateAt(message string, at time.Time) {
	c.log.Debug(message)
	c.ports.Sink.Append(message, at)
}

// discard records an event dropped before reaching the state machine.
func (c *Coordinator) discard(kind, reason string) {
	c.log.WithFields(logrus.Fields{"event": kind, "reason": reason}).
		Debug(primitives.ErrStaleEventDiscarded.Error())
}

func (c *Coordinator) allowed(evt primitives.Event) bool {
	for _, g := range c.guards {
		if !g.Allow(evt) {
			return false
		}
	}
	return true
}
