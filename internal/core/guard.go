package core

import "github.com/comalice/trackcoord/internal/primitives"

// Guard filters events before they reach the state machine. A guard that
// returns false discards the event.
type Guard interface {
	Allow(evt primitives.Event) bool
}

// GuardFunc adapts a plain function to Guard.
type GuardFunc func(evt primitives.Event) bool

func (f GuardFunc) Allow(evt primitives.Event) bool {
	return f(evt)
}

// confidenceGuard drops motion events whose reported confidence is below
// threshold. Events without a confidence score always pass.
type confidenceGuard struct {
	threshold int
}

func (g confidenceGuard) Allow(evt primitives.Event) bool {
	m, ok := evt.Data.(primitives.MotionEvent)
	if !ok || m.Confidence == nil {
		return true
	}
	return *m.Confidence >= g.threshold
}
