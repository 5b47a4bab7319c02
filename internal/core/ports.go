// Package core provides the tracking coordinator: the serialized state
// machine that reconciles motion, perimeter and position events into a
// single movement state and drives the power-hungry subsystems.
//
// Collaborators are passed in as ports at construction. Every call into a
// port happens on the command runner goroutine, never on the coordinator's
// serialized loop.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/comalice/trackcoord/internal/primitives"
)

// MotionSource reports discrete still enter/exit transitions.
// Start and Stop return primitives.ErrPermissionDenied when the runtime
// permission is missing.
type MotionSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PositionRequest describes the continuous sampling the coordinator wants.
type PositionRequest struct {
	Interval              time.Duration
	MinDisplacementMeters float64
	HighAccuracy          bool
	WaitForAccurate       bool
}

// DefaultPositionRequest samples every 10s with a 50m displacement filter.
func DefaultPositionRequest() PositionRequest {
	return PositionRequest{
		Interval:              10 * time.Second,
		MinDisplacementMeters: 50,
		HighAccuracy:          true,
		WaitForAccurate:       true,
	}
}

// PositionSource provides the continuous stream and one-shot fixes.
// CurrentLocation returns primitives.ErrNoFix when the query resolves empty.
type PositionSource interface {
	StartContinuous(ctx context.Context, req PositionRequest) error
	StopContinuous(ctx context.Context) error
	CurrentLocation(ctx context.Context) (primitives.LocationSample, error)
}

// PerimeterSource registers circular regions. Upsert must replace any
// registration with the same id.
type PerimeterSource interface {
	Upsert(ctx context.Context, fence primitives.Geofence) error
	Remove(ctx context.Context, ids ...primitives.GeofenceID) error
	RemoveAll(ctx context.Context) error
}

// ExecutionHost controls the process execution mode. RequestForeground
// returns primitives.ErrExecutionRefused when the host will not promote.
type ExecutionHost interface {
	RequestForeground(ctx context.Context) error
	RequestBackground(ctx context.Context) error
	Release(ctx context.Context) error
}

// EventSink is the append-only observability log. Append must not block
// and must be safe for concurrent use.
type EventSink interface {
	Append(message string, at time.Time)
}

// StateStore is synchronous durable key-value persistence. Absent keys
// yield def.
type StateStore interface {
	GetBool(key string, def bool) (bool, error)
	PutBool(key string, value bool) error
	GetString(key string, def string) (string, error)
	PutString(key string, value string) error
}

// EventSource feeds enveloped events into the coordinator.
type EventSource interface {
	Events() <-chan primitives.Event
}

// StateTransition describes one committed TrackingState change.
type StateTransition struct {
	From   primitives.TrackingState `json:"from"`
	To     primitives.TrackingState `json:"to"`
	Reason string                   `json:"reason"`
	At     time.Time                `json:"at"`
}

// StatePublisher observes committed transitions. Publish runs on the
// command goroutine under the command timeout, in commit order.
type StatePublisher interface {
	Publish(ctx context.Context, t StateTransition) error
	Close() error
}

// Ports bundles the collaborators. Sink is optional.
type Ports struct {
	Motion    MotionSource
	Position  PositionSource
	Perimeter PerimeterSource
	Host      ExecutionHost
	Sink      EventSink
	Store     StateStore
}

func (p Ports) validate() error {
	var errs []error
	if p.Motion == nil {
		errs = append(errs, errors.New("motion source is required"))
	}
	if p.Position == nil {
		errs = append(errs, errors.New("position source is required"))
	}
	if p.Perimeter == nil {
		errs = append(errs, errors.New("perimeter source is required"))
	}
	if p.Host == nil {
		errs = append(errs, errors.New("execution host is required"))
	}
	if p.Store == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	return errors.Join(errs...)
}

type discardSink struct{}

func (discardSink) Append(string, time.Time) {}
