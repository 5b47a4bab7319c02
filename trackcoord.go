// Package trackcoord coordinates location tracking on a device. It watches
// activity recognition, a continuous position stream and geofence exits, and
// keeps a two-state machine (MOVING or STATIONARY) that decides when to run
// expensive continuous tracking and when to fall back to passive geofences.
//
// The platform is reached through the port interfaces in Ports. All
// decisions happen on one serialized loop owned by the Coordinator; provider
// calls run on a separate command goroutine and never block it.
package trackcoord

import (
	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/primitives"
)

type (
	Coordinator     = core.Coordinator
	Ports           = core.Ports
	Option          = core.Option
	Status          = core.Status
	StateTransition = core.StateTransition

	MotionSource    = core.MotionSource
	PositionSource  = core.PositionSource
	PositionRequest = core.PositionRequest
	PerimeterSource = core.PerimeterSource
	ExecutionHost   = core.ExecutionHost
	EventSink       = core.EventSink
	StateStore      = core.StateStore
	EventSource     = core.EventSource
	StatePublisher  = core.StatePublisher
	Guard           = core.Guard
	GuardFunc       = core.GuardFunc
	Command         = core.Command
	CommandRunner   = core.CommandRunner

	LastGeofencePolicy = core.LastGeofencePolicy

	TrackingState  = primitives.TrackingState
	ActivityKind   = primitives.ActivityKind
	TransitionType = primitives.TransitionType
	MotionEvent    = primitives.MotionEvent
	PerimeterEvent = primitives.PerimeterEvent
	LocationSample = primitives.LocationSample
	Geofence       = primitives.Geofence
	GeofenceID     = primitives.GeofenceID
	Event          = primitives.Event
)

const (
	Moving     = primitives.Moving
	Stationary = primitives.Stationary

	ActivityUnknown   = primitives.ActivityUnknown
	ActivityStill     = primitives.ActivityStill
	ActivityWalking   = primitives.ActivityWalking
	ActivityRunning   = primitives.ActivityRunning
	ActivityOnFoot    = primitives.ActivityOnFoot
	ActivityOnBicycle = primitives.ActivityOnBicycle
	ActivityInVehicle = primitives.ActivityInVehicle
	ActivityTilting   = primitives.ActivityTilting

	TransitionEnter = primitives.TransitionEnter
	TransitionExit  = primitives.TransitionExit

	GeofenceStart = primitives.GeofenceStart
	GeofenceLast  = primitives.GeofenceLast

	LastReplace  = core.LastReplace
	LastIfAbsent = core.LastIfAbsent
	LastNever    = core.LastNever

	DefaultDebounce            = core.DefaultDebounce
	DefaultConfidenceThreshold = core.DefaultConfidenceThreshold
)

var (
	ErrNotStarted            = core.ErrNotStarted
	ErrClosed                = core.ErrClosed
	ErrQueueFull             = core.ErrQueueFull
	ErrPermissionDenied      = primitives.ErrPermissionDenied
	ErrExecutionRefused      = primitives.ErrExecutionRefused
	ErrCorruptPersistedState = primitives.ErrCorruptPersistedState
	ErrNoFix                 = primitives.ErrNoFix
)

// Options.
var (
	WithClock               = core.WithClock
	WithLogger              = core.WithLogger
	WithDebounce            = core.WithDebounce
	WithConfidenceThreshold = core.WithConfidenceThreshold
	WithGeofenceRadius      = core.WithGeofenceRadius
	WithLastGeofencePolicy  = core.WithLastGeofencePolicy
	WithQueryTimeout        = core.WithQueryTimeout
	WithCommandTimeout      = core.WithCommandTimeout
	WithPositionRequest     = core.WithPositionRequest
	WithQueueSize           = core.WithQueueSize
	WithGuard               = core.WithGuard
	WithCommandRunner       = core.WithCommandRunner
	WithEventSource         = core.WithEventSource
	WithPublisher           = core.WithPublisher
	DefaultPositionRequest  = core.DefaultPositionRequest
	ParseLastGeofencePolicy = core.ParseLastGeofencePolicy
	ParseActivityKind       = primitives.ParseActivityKind
	DecodeState             = primitives.DecodeState
	NewGeofence             = primitives.NewGeofence
)

// New builds a coordinator over ports. Call Start before use.
func New(ports Ports, opts ...Option) (*Coordinator, error) {
	return core.NewCoordinator(ports, opts...)
}

// Boot resumes a session that was active before a restart. It reports
// whether tracking resumed.
var Boot = core.Boot
