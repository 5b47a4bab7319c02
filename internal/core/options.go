// Options for configuring Coordinator instances.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Policy defaults.
const (
	DefaultDebounce            = 180 * time.Second
	DefaultConfidenceThreshold = 50
	DefaultQueryTimeout        = 30 * time.Second
	DefaultCommandTimeout      = 30 * time.Second
	DefaultQueueSize           = 1000
)

// LastGeofencePolicy decides whether the stationary commit places the LAST
// geofence at the most recent sample.
type LastGeofencePolicy int

const (
	// LastReplace always (re)places LAST on the stationary commit.
	LastReplace LastGeofencePolicy = iota
	// LastIfAbsent places LAST only when none is registered.
	LastIfAbsent
	// LastNever leaves LAST alone on the stationary commit.
	LastNever
)

func (p LastGeofencePolicy) String() string {
	switch p {
	case LastReplace:
		return "replace"
	case LastIfAbsent:
		return "if_absent"
	case LastNever:
		return "never"
	}
	return fmt.Sprintf("LastGeofencePolicy(%d)", int(p))
}

// ParseLastGeofencePolicy parses "replace", "if_absent" or "never".
func ParseLastGeofencePolicy(s string) (LastGeofencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return LastReplace, nil
	case "if_absent":
		return LastIfAbsent, nil
	case "never":
		return LastNever, nil
	}
	return LastReplace, fmt.Errorf("unknown last geofence policy %q", s)
}

type settings struct {
	debounce            time.Duration
	confidenceThreshold int
	radiusMeters        float64
	lastPolicy          LastGeofencePolicy
	queryTimeout        time.Duration
	commandTimeout      time.Duration
	position            PositionRequest
	queueSize           int
}

func defaultSettings() settings {
	return settings{
		debounce:            DefaultDebounce,
		confidenceThreshold: DefaultConfidenceThreshold,
		lastPolicy:          LastReplace,
		queryTimeout:        DefaultQueryTimeout,
		commandTimeout:      DefaultCommandTimeout,
		position:            DefaultPositionRequest(),
		queueSize:           DefaultQueueSize,
	}
}

// Option applies configuration to Coordinator via functional options pattern.
type Option func(*Coordinator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithDebounce sets the still-enter debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cfg.debounce = d
		}
	}
}

// WithConfidenceThreshold drops motion events reporting a lower confidence.
func WithConfidenceThreshold(threshold int) Option {
	return func(c *Coordinator) {
		c.cfg.confidenceThreshold = threshold
	}
}

// WithGeofenceRadius sets the radius used for START and LAST.
func WithGeofenceRadius(meters float64) Option {
	return func(c *Coordinator) {
		c.cfg.radiusMeters = meters
	}
}

// WithLastGeofencePolicy configures LAST placement on the stationary commit.
func WithLastGeofencePolicy(p LastGeofencePolicy) Option {
	return func(c *Coordinator) {
		c.cfg.lastPolicy = p
	}
}

// WithQueryTimeout bounds one-shot current-location queries.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cfg.queryTimeout = d
		}
	}
}

// WithCommandTimeout bounds each provider command.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cfg.commandTimeout = d
		}
	}
}

// WithPositionRequest overrides continuous sampling parameters.
func WithPositionRequest(req PositionRequest) Option {
	return func(c *Coordinator) {
		c.cfg.position = req
	}
}

// WithQueueSize configures the serialized loop's buffer size.
func WithQueueSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.cfg.queueSize = size
		}
	}
}

// WithGuard appends a guard evaluated before events reach the state machine.
func WithGuard(g Guard) Option {
	return func(c *Coordinator) {
		c.guards = append(c.guards, g)
	}
}

// WithCommandRunner configures a custom CommandRunner.
func WithCommandRunner(r CommandRunner) Option {
	return func(c *Coordinator) {
		c.runner = r
	}
}

// WithEventSource configures a source pumped into the coordinator.
func WithEventSource(s EventSource) Option {
	return func(c *Coordinator) {
		c.sources = append(c.sources, s)
	}
}

// WithPublisher configures a StatePublisher.
func WithPublisher(p StatePublisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}
