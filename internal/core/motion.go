package core

import (
	"errors"
	"fmt"

	"github.com/comalice/trackcoord/internal/primitives"
)

func (c *Coordinator) onMotion(evt primitives.MotionEvent) {
	if !c.session {
		c.discard(primitives.EventMotion, "session inactive")
		return
	}
	if !c.allowed(primitives.NewEvent(primitives.EventMotion, evt)) {
		c.discard(primitives.EventMotion, "guard rejected "+evt.String())
		return
	}
	c.narrate(fmt.Sprintf("Activity update: %s", evt))

	if evt.IsStill() && evt.Transition == primitives.TransitionEnter {
		c.onStillEnter()
		return
	}
	c.onMovingSignal()
}

// onStillEnter restarts the debounce window on every ENTER.
func (c *Coordinator) onStillEnter() {
	if c.state != primitives.Moving {
		c.log.Debug("STILL enter while STATIONARY; nothing to arm")
		return
	}
	c.cancelTimer()
	c.armTimer()
	c.narrate(fmt.Sprintf("ActivityRecognition: STILL enter, scheduling %s check", c.cfg.debounce))
}

func (c *Coordinator) onMovingSignal() {
	if c.state != primitives.Stationary && c.timer == nil {
		return
	}
	c.cancelTimer()
	c.narrate("ActivityRecognition: STILL exit, cancel timer")
	c.commit(primitives.Moving, "movement detected")
	c.requestForeground()
}

// armTimer starts a new stationary timer. The callback only posts; the
// generation check inside the loop decides whether it still counts.
func (c *Coordinator) armTimer() {
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.cfg.debounce, func() {
		c.post(func() { c.onTimerFired(gen) })
	})
}

// cancelTimer stops the live timer, if any, and invalidates any fire
// already queued. Cancelling a fired timer is a no-op.
func (c *Coordinator) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Coordinator) onTimerFired(gen uint64) {
	if gen != c.timerGen || c.timer == nil {
		c.log.WithField("generation", gen).Debug("stale stationary timer ignored")
		return
	}
	c.timer = nil
	if !c.session {
		return
	}
	c.narrate("USER_IS_STATIONARY")
	c.commit(primitives.Stationary, "debounce elapsed")
	c.requestBackground()

	if c.lastLocation == nil {
		return
	}
	switch c.cfg.lastPolicy {
	case LastReplace:
		c.placeLast(*c.lastLocation)
	case LastIfAbsent:
		if _, ok := c.geofences[primitives.GeofenceLast]; !ok {
			c.placeLast(*c.lastLocation)
		}
	}
}

func isRefused(err error) bool {
	return errors.Is(err, primitives.ErrExecutionRefused)
}
