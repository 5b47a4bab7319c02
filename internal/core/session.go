package core

import (
	"context"
	"fmt"

	"github.com/comalice/trackcoord/internal/primitives"
)

// load reads the persisted state. Called once from NewCoordinator before
// the loop exists.
func (c *Coordinator) load() {
	c.state = primitives.Moving
	raw, err := c.ports.Store.GetString(KeyTrackingState, primitives.EncodeState(primitives.Moving))
	if err != nil {
		c.log.WithError(err).Warn("reading persisted state; defaulting to MOVING")
	} else if s, err := primitives.DecodeState(raw); err != nil {
		c.log.WithError(err).Warn("persisted state unreadable; defaulting to MOVING")
	} else {
		c.state = s
	}

	flag, err := c.ports.Store.GetBool(KeySessionFlag, false)
	if err != nil {
		c.log.WithError(err).Warn("reading session flag; defaulting to false")
		flag = false
	}
	c.session = flag
}

// commit is the only place TrackingState changes. Memory first, then the
// store, then the log. Publishing goes through the outbox like any other
// provider call.
func (c *Coordinator) commit(next primitives.TrackingState, reason string) bool {
	if c.state == next {
		return false
	}
	prev := c.state
	c.state = next
	if err := c.ports.Store.PutString(KeyTrackingState, primitives.EncodeState(next)); err != nil {
		c.log.WithError(err).Error("persisting tracking state")
	}
	c.narrate(fmt.Sprintf("State changed to %s", next))
	if c.publisher != nil {
		publisher := c.publisher
		t := StateTransition{From: prev, To: next, Reason: reason, At: c.clock.Now()}
		c.issue("publish", func(ctx context.Context) error { return publisher.Publish(ctx, t) }, nil)
	}
	return true
}

func (c *Coordinator) setSession(on bool) {
	c.session = on
	if err := c.ports.Store.PutBool(KeySessionFlag, on); err != nil {
		c.log.WithError(err).Error("persisting session flag")
	}
}

// startTracking arms the session. With rearm set it re-establishes every
// subscription even though the flag is already true, because the host does
// not keep sensor registrations across a process restart.
func (c *Coordinator) startTracking(rearm bool) {
	if c.session && !rearm {
		c.log.Debug("startTracking ignored: already tracking")
		return
	}
	if !c.session {
		c.setSession(true)
	}
	c.epoch++
	// acks from the previous epoch are ignored; LAST coalescing starts over
	c.last = lastPlacement{}
	if rearm {
		c.narrate("Resuming tracking")
	} else {
		c.narrate("Starting tracking")
	}

	motion, position := c.ports.Motion, c.ports.Position
	req := c.cfg.position
	c.issue("motion.start", func(ctx context.Context) error { return motion.Start(ctx) }, nil)
	c.issue("position.start", func(ctx context.Context) error { return position.StartContinuous(ctx, req) }, nil)
	c.placeStartAtCurrentLocation()
	c.requestForeground()
}

func (c *Coordinator) stopTracking() {
	c.cancelTimer()
	c.epoch++
	c.last = lastPlacement{}

	motion, position, host, perimeter := c.ports.Motion, c.ports.Position, c.ports.Host, c.ports.Perimeter
	c.issue("motion.stop", func(ctx context.Context) error { return motion.Stop(ctx) }, nil)
	c.issue("position.stop", func(ctx context.Context) error { return position.StopContinuous(ctx) }, nil)
	c.issue("host.release", func(ctx context.Context) error { return host.Release(ctx) }, nil)
	c.issue("perimeter.remove_all", func(ctx context.Context) error { return perimeter.RemoveAll(ctx) }, nil)
	clear(c.geofences)

	c.commit(primitives.Stationary, "tracking stopped")
	c.setSession(false)
	c.lastLocation = nil
	c.narrate("Stopping tracking")
}

// resume consults the persisted flag rather than memory.
func (c *Coordinator) resume() bool {
	flag, err := c.ports.Store.GetBool(KeySessionFlag, false)
	if err != nil {
		c.log.WithError(err).Warn("reading session flag on resume")
		return false
	}
	if !flag {
		c.log.Debug("no previous session to resume")
		return false
	}
	c.session = true
	c.startTracking(true)
	return true
}

// requestForeground promotes the host. A refusal falls back to
// geofence-only monitoring.
func (c *Coordinator) requestForeground() {
	host := c.ports.Host
	epoch := c.epoch
	c.issue("host.foreground", func(ctx context.Context) error { return host.RequestForeground(ctx) }, func(err error) {
		if err == nil || !isRefused(err) {
			return
		}
		if epoch != c.epoch || !c.session {
			c.discard("host.refused", "session changed")
			return
		}
		c.narrate(fmt.Sprintf("Failed to start foreground service: %v", err))
		c.placeStartAtCurrentLocation()
	})
}

func (c *Coordinator) requestBackground() {
	host := c.ports.Host
	c.issue("host.background", func(ctx context.Context) error { return host.RequestBackground(ctx) }, nil)
}
