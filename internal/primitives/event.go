// Event provides the immutable envelope fed into the coordinator by event
// sources.
//
// Sources that deliver through a channel wrap their payload in an Event whose
// Data is one of MotionEvent, PerimeterEvent or LocationSample. Callers that
// hold a typed payload should use the coordinator's Handle* methods instead.
package primitives

import (
	"fmt"
	"strings"
	"time"
)

// Event types understood by the coordinator.
const (
	EventMotion    = "motion"
	EventPerimeter = "perimeter"
	EventLocation  = "location"
)

type Event struct {
	Type string
	Data any
}

// NewEvent creates and returns a new immutable Event.
func NewEvent(eventType string, data any) Event {
	return Event{
		Type: eventType,
		Data: data,
	}
}

// ActivityKind is the classification reported by a motion source.
type ActivityKind int

const (
	ActivityUnknown ActivityKind = iota
	ActivityStill
	ActivityWalking
	ActivityRunning
	ActivityOnFoot
	ActivityOnBicycle
	ActivityInVehicle
	ActivityTilting
)

var activityNames = map[ActivityKind]string{
	ActivityUnknown:   "UNKNOWN",
	ActivityStill:     "STILL",
	ActivityWalking:   "WALKING",
	ActivityRunning:   "RUNNING",
	ActivityOnFoot:    "ON_FOOT",
	ActivityOnBicycle: "ON_BICYCLE",
	ActivityInVehicle: "IN_VEHICLE",
	ActivityTilting:   "TILTING",
}

func (k ActivityKind) String() string {
	if name, ok := activityNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActivityKind(%d)", int(k))
}

// ParseActivityKind maps a provider name ("still", "IN_VEHICLE") to a kind.
// Unknown names map to ActivityUnknown.
func ParseActivityKind(s string) ActivityKind {
	s = strings.ToUpper(strings.TrimSpace(s))
	for k, name := range activityNames {
		if name == s {
			return k
		}
	}
	return ActivityUnknown
}

// TransitionType is the direction of a motion or perimeter transition.
type TransitionType int

const (
	TransitionEnter TransitionType = iota
	TransitionExit
)

func (t TransitionType) String() string {
	switch t {
	case TransitionEnter:
		return "ENTER"
	case TransitionExit:
		return "EXIT"
	default:
		return fmt.Sprintf("TransitionType(%d)", int(t))
	}
}

// ParseTransitionType accepts "enter"/"exit" in any case.
func ParseTransitionType(s string) (TransitionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ENTER":
		return TransitionEnter, nil
	case "EXIT":
		return TransitionExit, nil
	}
	return 0, fmt.Errorf("unknown transition type %q", s)
}

// MotionEvent is a discrete activity transition. Confidence is nil for
// sources that only report binary enter/exit facts.
type MotionEvent struct {
	Kind       ActivityKind
	Transition TransitionType
	Time       time.Time
	Confidence *int
}

// IsStill reports whether the event classifies the device as stationary.
func (e MotionEvent) IsStill() bool {
	return e.Kind == ActivityStill
}

func (e MotionEvent) String() string {
	if e.Confidence != nil {
		return fmt.Sprintf("%s %s confidence=%d", e.Kind, e.Transition, *e.Confidence)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Transition)
}

// PerimeterEvent reports that the device crossed one or more geofences.
type PerimeterEvent struct {
	TriggeringIDs []GeofenceID
	Transition    TransitionType
	Time          time.Time
}
