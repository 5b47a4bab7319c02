package extensibility

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/primitives"
)

// SoftPerimeterSource evaluates geofences in process against the samples
// passed to Observe, for hosts without a platform geofencing service.
type SoftPerimeterSource struct {
	log *logrus.Entry
	ch  chan primitives.Event

	mu      sync.Mutex
	fences  map[primitives.GeofenceID]*softFence
	denied  bool
	bgAllow bool
}

type softFence struct {
	fence primitives.Geofence
	// nil until the first observation after registration
	inside *bool
}

// NewSoftPerimeterSource returns a source with background access allowed.
func NewSoftPerimeterSource(log *logrus.Entry) *SoftPerimeterSource {
	if log == nil {
		log = logrus.WithField("component", "soft_perimeter")
	}
	return &SoftPerimeterSource{
		log:     log,
		ch:      make(chan primitives.Event, 16),
		fences:  map[primitives.GeofenceID]*softFence{},
		bgAllow: true,
	}
}

// Deny makes registration calls fail with ErrPermissionDenied.
func (s *SoftPerimeterSource) Deny(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = denied
}

// AllowBackground records whether background location access was granted.
// Without it geofences are still registered but may never trigger.
func (s *SoftPerimeterSource) AllowBackground(allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bgAllow = allowed
}

func (s *SoftPerimeterSource) Events() <-chan primitives.Event {
	return s.ch
}

func (s *SoftPerimeterSource) Upsert(ctx context.Context, fence primitives.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return primitives.ErrPermissionDenied
	}
	if !s.bgAllow {
		s.log.WithField("geofence", fence.ID).Warn("background location not granted; geofence may not trigger")
	}
	s.fences[fence.ID] = &softFence{fence: fence}
	return nil
}

func (s *SoftPerimeterSource) Remove(ctx context.Context, ids ...primitives.GeofenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return primitives.ErrPermissionDenied
	}
	for _, id := range ids {
		delete(s.fences, id)
	}
	return nil
}

func (s *SoftPerimeterSource) RemoveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fences)
	return nil
}

// Registered returns the ids currently registered, sorted.
func (s *SoftPerimeterSource) Registered() []primitives.GeofenceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]primitives.GeofenceID, 0, len(s.fences))
	for id := range s.fences {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Evaluate feeds one device position without emitting. Geofences whose
// boundary was crossed outward are reported together in a single
// PerimeterEvent. A geofence whose initial trigger includes EXIT fires on its
// first observation when the device is already outside.
func (s *SoftPerimeterSource) Evaluate(loc primitives.LocationSample) (primitives.PerimeterEvent, bool) {
	s.mu.Lock()
	var exited []primitives.GeofenceID
	for id, f := range s.fences {
		inside := f.fence.Contains(loc)
		switch {
		case f.inside == nil:
			if !inside && f.fence.InitialTrigger.Has(primitives.TransitionExit) {
				exited = append(exited, id)
			}
		case *f.inside && !inside && f.fence.Transitions.Has(primitives.TransitionExit):
			exited = append(exited, id)
		}
		f.inside = &inside
	}
	s.mu.Unlock()

	if len(exited) == 0 {
		return primitives.PerimeterEvent{}, false
	}
	sort.Slice(exited, func(i, j int) bool { return exited[i] < exited[j] })
	at := loc.Time
	if at.IsZero() {
		at = time.Now()
	}
	return primitives.PerimeterEvent{TriggeringIDs: exited, Transition: primitives.TransitionExit, Time: at}, true
}

// Observe evaluates loc and emits the exit on Events.
func (s *SoftPerimeterSource) Observe(loc primitives.LocationSample) (primitives.PerimeterEvent, bool) {
	evt, fired := s.Evaluate(loc)
	if !fired {
		return evt, false
	}
	select {
	case s.ch <- primitives.NewEvent(primitives.EventPerimeter, evt):
	default:
		s.log.WithField("geofences", evt.TriggeringIDs).Warn("perimeter event dropped")
	}
	return evt, true
}
