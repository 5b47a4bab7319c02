package extensibility

import (
	"github.com/comalice/trackcoord/internal/primitives"
)

// AccuracyGuard drops location samples whose reported accuracy radius is
// worse than MaxMeters. Samples without an accuracy always pass.
type AccuracyGuard struct {
	MaxMeters float64
}

func (g AccuracyGuard) Allow(evt primitives.Event) bool {
	s, ok := evt.Data.(primitives.LocationSample)
	if !ok || s.Accuracy == nil || g.MaxMeters <= 0 {
		return true
	}
	return *s.Accuracy <= g.MaxMeters
}

// IgnoreActivityGuard drops motion events of the listed kinds, e.g. TILTING,
// which says nothing about displacement.
type IgnoreActivityGuard struct {
	Kinds []primitives.ActivityKind
}

func (g IgnoreActivityGuard) Allow(evt primitives.Event) bool {
	m, ok := evt.Data.(primitives.MotionEvent)
	if !ok {
		return true
	}
	for _, k := range g.Kinds {
		if m.Kind == k {
			return false
		}
	}
	return true
}
