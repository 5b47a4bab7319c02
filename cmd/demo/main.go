// Command demo scripts a short walk over simulated providers: the walker
// sets off, stops long enough for the debounce to commit STATIONARY, then
// leaves the START perimeter. Time runs on a mock clock, so the whole
// scenario finishes instantly.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/extensibility"
	"github.com/comalice/trackcoord/internal/primitives"
	"github.com/comalice/trackcoord/internal/production"
)

var walk = []primitives.LocationSample{
	{Latitude: 40.7580, Longitude: -73.9855},
	{Latitude: 40.7590, Longitude: -73.9845},
	{Latitude: 40.7600, Longitude: -73.9835},
}

func main() {
	logrus.SetLevel(logrus.WarnLevel)
	log := logrus.WithField("component", "demo")

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	motion := extensibility.NewChannelMotionSource(8)
	position := extensibility.NewReplayPositionSource(walk, mock)
	perimeter := extensibility.NewSoftPerimeterSource(log)
	host := extensibility.NewSimulatedHost(true)
	sink := production.NewRingSink(100)

	publishChan := make(chan core.StateTransition, 16)
	c, err := core.NewCoordinator(core.Ports{
		Motion:    motion,
		Position:  position,
		Perimeter: perimeter,
		Host:      host,
		Sink:      sink,
		Store:     production.NewMemoryStore(),
	},
		core.WithClock(mock),
		core.WithLogger(log),
		core.WithEventSource(motion),
		core.WithEventSource(position),
		core.WithEventSource(perimeter),
		core.WithPublisher(production.NewChannelPublisher(publishChan)),
	)
	if err != nil {
		fail(err)
	}
	if err := c.Start(); err != nil {
		fail(err)
	}
	defer c.Close()

	ctx := context.Background()
	visualizer := &production.DefaultVisualizer{}
	settle := func() {
		// let pumped events reach the loop before draining commands
		time.Sleep(20 * time.Millisecond)
		if err := c.Drain(ctx); err != nil {
			fail(err)
		}
	}
	report := func(step string) {
		settle()
		st, err := c.Status(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("\n--- %s ---\n", step)
		fmt.Printf("State: %s  tracking=%v  timer=%v  host=%s\n", st.State, st.Tracking, st.TimerArmed, host.Mode())
		for _, g := range st.Geofences {
			fmt.Println("  geofence", g)
		}
		for drained := false; !drained; {
			select {
			case t := <-publishChan:
				fmt.Printf("Published: %s -> %s (%s)\n", t.From, t.To, t.Reason)
			default:
				drained = true
			}
		}
	}

	if err := c.StartTracking(ctx); err != nil {
		fail(err)
	}
	report("tracking started")

	for range walk {
		mock.Add(core.DefaultPositionRequest().Interval)
		time.Sleep(5 * time.Millisecond)
	}
	report("walked")

	motion.Emit(primitives.ActivityStill, primitives.TransitionEnter, mock.Now())
	settle()
	mock.Add(core.DefaultDebounce)
	report("stood still")
	fmt.Println("DOT:\n" + visualizer.ExportDOT(primitives.Stationary))

	// observing from inside first makes the next sample a real crossing
	perimeter.Observe(walk[len(walk)-1])
	perimeter.Observe(primitives.LocationSample{Latitude: 40.7650, Longitude: -73.9800})
	report("left the perimeter")

	if err := c.StopTracking(ctx); err != nil {
		fail(err)
	}
	report("tracking stopped")

	fmt.Println("\nNarration (newest first):")
	for _, e := range sink.Recent(0) {
		fmt.Printf("  %s  %s\n", e.Time.Format(time.TimeOnly), e.Message)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "demo:", err)
	os.Exit(1)
}
