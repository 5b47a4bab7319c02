package extensibility

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/primitives"
)

// ChannelEventSource is an EventSource implementation backed by a Go channel.
// Provides a simple way to feed external events into the Coordinator.
type ChannelEventSource struct {
	ch chan primitives.Event
}

// Events returns the receive-only channel for events.
func (s *ChannelEventSource) Events() <-chan primitives.Event {
	return s.ch
}

// NewChannelEventSource creates a new ChannelEventSource with the given channel.
// The channel should be buffered if backpressure handling is needed.
func NewChannelEventSource(ch chan primitives.Event) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// ReplayPositionSource plays a recorded track back as a continuous position
// stream. Each tick advances one sample; samples closer than the requested
// minimum displacement to the last delivered one are skipped.
type ReplayPositionSource struct {
	clock clock.Clock
	ch    chan primitives.Event

	mu        sync.Mutex
	track     []primitives.LocationSample
	next      int
	current   *primitives.LocationSample
	delivered *primitives.LocationSample
	req       core.PositionRequest
	stop      chan struct{}
	denied    bool
}

// NewReplayPositionSource replays track on clk. A nil clk uses the wall clock.
func NewReplayPositionSource(track []primitives.LocationSample, clk clock.Clock) *ReplayPositionSource {
	if clk == nil {
		clk = clock.New()
	}
	return &ReplayPositionSource{
		clock: clk,
		ch:    make(chan primitives.Event, 16),
		track: append([]primitives.LocationSample(nil), track...),
	}
}

// Deny makes every call fail with ErrPermissionDenied.
func (s *ReplayPositionSource) Deny(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = denied
}

func (s *ReplayPositionSource) Events() <-chan primitives.Event {
	return s.ch
}

func (s *ReplayPositionSource) StartContinuous(ctx context.Context, req core.PositionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return primitives.ErrPermissionDenied
	}
	if s.stop != nil {
		return nil
	}
	if req.Interval <= 0 {
		req.Interval = core.DefaultPositionRequest().Interval
	}
	s.req = req
	s.delivered = nil
	s.stop = make(chan struct{})
	go s.run(s.clock.Ticker(req.Interval), s.stop)
	return nil
}

func (s *ReplayPositionSource) StopContinuous(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// CurrentLocation returns the replay head, or ErrNoFix before the track
// starts.
func (s *ReplayPositionSource) CurrentLocation(ctx context.Context) (primitives.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return primitives.LocationSample{}, primitives.ErrPermissionDenied
	}
	if s.current != nil {
		return *s.current, nil
	}
	if len(s.track) > 0 {
		return s.track[0], nil
	}
	return primitives.LocationSample{}, primitives.ErrNoFix
}

func (s *ReplayPositionSource) run(ticker *clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if sample, ok := s.advance(); ok {
				select {
				case s.ch <- primitives.NewEvent(primitives.EventLocation, sample):
				default:
					// drop if full
				}
			}
		case <-stop:
			return
		}
	}
}

func (s *ReplayPositionSource) advance() (primitives.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.track) {
		return primitives.LocationSample{}, false
	}
	sample := s.track[s.next]
	s.next++
	sample.Time = s.clock.Now()
	s.current = &sample
	if s.delivered != nil && s.delivered.DistanceTo(sample) < s.req.MinDisplacementMeters {
		return primitives.LocationSample{}, false
	}
	s.delivered = &sample
	return sample, true
}

// Accept records a live sample, e.g. from an ingest endpoint, as the current
// fix. It returns the sample stamped with the clock when it had no time, and
// whether a streaming subscriber should receive it: only while streaming and
// when far enough from the last delivered sample.
func (s *ReplayPositionSource) Accept(sample primitives.LocationSample) (primitives.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.Time.IsZero() {
		sample.Time = s.clock.Now()
	}
	s.current = &sample
	if s.stop == nil || (s.delivered != nil && s.delivered.DistanceTo(sample) < s.req.MinDisplacementMeters) {
		return sample, false
	}
	s.delivered = &sample
	return sample, true
}

// Push accepts sample and emits it on Events. It reports whether the sample
// was delivered.
func (s *ReplayPositionSource) Push(sample primitives.LocationSample) bool {
	sample, ok := s.Accept(sample)
	if !ok {
		return false
	}
	select {
	case s.ch <- primitives.NewEvent(primitives.EventLocation, sample):
		return true
	default:
		return false
	}
}

// Remaining reports how many samples have not been replayed yet.
func (s *ReplayPositionSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.track) - s.next
}

// ChannelMotionSource forwards motion transitions pushed with Emit while it
// is started. Emits outside a subscription are dropped, as a platform would.
type ChannelMotionSource struct {
	ch chan primitives.Event

	mu      sync.Mutex
	started bool
	denied  bool
}

func NewChannelMotionSource(buffer int) *ChannelMotionSource {
	return &ChannelMotionSource{ch: make(chan primitives.Event, buffer)}
}

// Deny makes Start and Stop report ErrPermissionDenied.
func (s *ChannelMotionSource) Deny(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = denied
}

func (s *ChannelMotionSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return primitives.ErrPermissionDenied
	}
	s.started = true
	return nil
}

// Stop always ends delivery; a denied source still reports the denial.
func (s *ChannelMotionSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	if s.denied {
		return primitives.ErrPermissionDenied
	}
	return nil
}

func (s *ChannelMotionSource) Events() <-chan primitives.Event {
	return s.ch
}

// Emit reports one transition. It returns false when the event was dropped.
func (s *ChannelMotionSource) Emit(kind primitives.ActivityKind, tr primitives.TransitionType, at time.Time) bool {
	return s.Forward(primitives.MotionEvent{Kind: kind, Transition: tr, Time: at})
}

// Forward reports a fully populated event, confidence included.
func (s *ChannelMotionSource) Forward(evt primitives.MotionEvent) bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}
	select {
	case s.ch <- primitives.NewEvent(primitives.EventMotion, evt):
		return true
	default:
		return false
	}
}
