package core

import (
	"context"
	"fmt"

	"github.com/comalice/trackcoord/internal/primitives"
)

// lastPlacement coalesces LAST upserts: one in flight, at most one pending.
// A newer sample replaces the pending one instead of queueing behind it.
type lastPlacement struct {
	inFlight bool
	pending  *primitives.LocationSample
}

func (c *Coordinator) onLocation(sample primitives.LocationSample) {
	if !c.session {
		c.discard(primitives.EventLocation, "session inactive")
		return
	}
	if !c.allowed(primitives.NewEvent(primitives.EventLocation, sample)) {
		c.discard(primitives.EventLocation, "guard rejected sample")
		return
	}
	var distance float64
	if c.lastLocation != nil {
		distance = c.lastLocation.DistanceTo(sample)
	}
	c.lastLocation = &sample
	at := sample.Time
	if at.IsZero() {
		at = c.clock.Now()
	}
	c.narrateAt(fmt.Sprintf("Location received - %.6f:%.6f distance: %dm",
		sample.Latitude, sample.Longitude, int(distance)), at)

	if c.state == primitives.Moving {
		c.placeLast(sample)
	}
}

func (c *Coordinator) onPerimeterExit(evt primitives.PerimeterEvent) {
	if !c.session {
		c.discard(primitives.EventPerimeter, "session inactive")
		return
	}
	if len(evt.TriggeringIDs) > 0 {
		c.removeGeofences(evt.TriggeringIDs...)
		for _, id := range evt.TriggeringIDs {
			if id == primitives.GeofenceLast {
				// the queued sample predates the crossing
				c.last.pending = nil
			}
		}
	}
	c.cancelTimer()
	c.narrate(fmt.Sprintf("GeoFence exit detected %v, starting active tracking", evt.TriggeringIDs))
	c.commit(primitives.Moving, "perimeter exit")
	c.requestForeground()

	if c.lastLocation != nil {
		c.upsertGeofence(primitives.NewGeofence(primitives.GeofenceStart, *c.lastLocation, c.cfg.radiusMeters), nil)
		return
	}
	c.placeStartAtCurrentLocation()
}

// placeStartAtCurrentLocation queries a one-shot fix off the loop and places
// START when it resolves. A result from an older session is dropped.
func (c *Coordinator) placeStartAtCurrentLocation() {
	epoch := c.epoch
	position := c.ports.Position
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.queryTimeout)
		loc, err := position.CurrentLocation(ctx)
		cancel()
		c.post(func() { c.onStartFix(epoch, loc, err) })
	}()
}

func (c *Coordinator) onStartFix(epoch uint64, loc primitives.LocationSample, err error) {
	if epoch != c.epoch || !c.session {
		c.discard("current_location", "session changed")
		return
	}
	if err != nil {
		c.log.WithError(err).Warn("current location query failed")
		c.narrate(fmt.Sprintf("Failed to get current location: %v", err))
		return
	}
	if c.lastLocation == nil {
		c.lastLocation = &loc
	}
	c.upsertGeofence(primitives.NewGeofence(primitives.GeofenceStart, loc, c.cfg.radiusMeters), nil)
}

// placeLast upserts LAST at loc, coalescing with any placement in flight.
func (c *Coordinator) placeLast(loc primitives.LocationSample) {
	if c.last.inFlight {
		c.last.pending = &loc
		return
	}
	c.last.inFlight = true
	epoch := c.epoch
	c.upsertGeofence(primitives.NewGeofence(primitives.GeofenceLast, loc, c.cfg.radiusMeters), func(error) {
		c.onLastPlaced(epoch)
	})
}

func (c *Coordinator) onLastPlaced(epoch uint64) {
	if epoch != c.epoch {
		return
	}
	c.last.inFlight = false
	next := c.last.pending
	c.last.pending = nil
	if next != nil && c.session {
		c.placeLast(*next)
	}
}

// upsertGeofence records the registration and issues a provider-level
// upsert, so an id never has two live registrations.
func (c *Coordinator) upsertGeofence(fence primitives.Geofence, then func(error)) {
	c.geofences[fence.ID] = fence
	perimeter := c.ports.Perimeter
	c.issue("perimeter.upsert "+string(fence.ID), func(ctx context.Context) error {
		return perimeter.Upsert(ctx, fence)
	}, then)
}

func (c *Coordinator) removeGeofences(ids ...primitives.GeofenceID) {
	for _, id := range ids {
		delete(c.geofences, id)
	}
	perimeter := c.ports.Perimeter
	c.issue(fmt.Sprintf("perimeter.remove %v", ids), func(ctx context.Context) error {
		return perimeter.Remove(ctx, ids...)
	}, nil)
}
