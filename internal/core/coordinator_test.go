package core_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/primitives"
	"github.com/comalice/trackcoord/internal/production"
	"github.com/comalice/trackcoord/testutil"
)

const wait = 2 * time.Second

type harness struct {
	t         *testing.T
	clock     *clock.Mock
	motion    *testutil.FakeMotion
	position  *testutil.FakePosition
	perimeter *testutil.FakePerimeter
	host      *testutil.FakeHost
	sink      *testutil.RecordingSink
	store     *production.MemoryStore
	c         *core.Coordinator
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newHarness(t *testing.T, store *production.MemoryStore, opts ...core.Option) *harness {
	t.Helper()
	if store == nil {
		store = production.NewMemoryStore()
	}
	h := &harness{
		t:         t,
		clock:     clock.NewMock(),
		motion:    &testutil.FakeMotion{},
		position:  testutil.NewFakePosition(52.5200, 13.4050),
		perimeter: testutil.NewFakePerimeter(),
		host:      &testutil.FakeHost{},
		sink:      &testutil.RecordingSink{},
		store:     store,
	}
	opts = append([]core.Option{core.WithClock(h.clock), core.WithLogger(quietLogger())}, opts...)
	c, err := core.NewCoordinator(core.Ports{
		Motion:    h.motion,
		Position:  h.position,
		Perimeter: h.perimeter,
		Host:      h.host,
		Sink:      h.sink,
		Store:     store,
	}, opts...)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	h.c = c
	return h
}

func (h *harness) status() core.Status {
	h.t.Helper()
	st, err := h.c.Status(context.Background())
	if err != nil {
		h.t.Fatalf("Status: %v", err)
	}
	return st
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.c.StartTracking(context.Background()); err != nil {
		h.t.Fatalf("StartTracking: %v", err)
	}
	testutil.Eventually(h.t, wait, func() bool {
		_, ok := h.perimeter.Active()[primitives.GeofenceStart]
		return ok
	}, "START placed")
}

func (h *harness) motionEvent(kind primitives.ActivityKind, tr primitives.TransitionType, confidence *int) {
	h.t.Helper()
	evt := primitives.MotionEvent{Kind: kind, Transition: tr, Time: h.clock.Now(), Confidence: confidence}
	if err := h.c.HandleMotion(context.Background(), evt); err != nil {
		h.t.Fatalf("HandleMotion: %v", err)
	}
}

func (h *harness) stillEnter() {
	h.motionEvent(primitives.ActivityStill, primitives.TransitionEnter, nil)
}

func (h *harness) location(lat, lng float64) primitives.LocationSample {
	h.t.Helper()
	s := primitives.LocationSample{Latitude: lat, Longitude: lng, Time: h.clock.Now()}
	if err := h.c.HandleLocation(context.Background(), s); err != nil {
		h.t.Fatalf("HandleLocation: %v", err)
	}
	return s
}

func (h *harness) waitState(want primitives.TrackingState) {
	h.t.Helper()
	testutil.Eventually(h.t, wait, func() bool { return h.status().State == want }, "state "+want.String())
}

func (h *harness) drain() {
	h.t.Helper()
	if err := h.c.Drain(context.Background()); err != nil {
		h.t.Fatalf("Drain: %v", err)
	}
}

func intp(v int) *int { return &v }

func TestNewCoordinatorRequiresPorts(t *testing.T) {
	_, err := core.NewCoordinator(core.Ports{})
	if err == nil {
		t.Fatal("expected error for empty ports")
	}
}

func TestNotStarted(t *testing.T) {
	c, err := core.NewCoordinator(core.Ports{
		Motion:    &testutil.FakeMotion{},
		Position:  testutil.NewFakePosition(0, 0),
		Perimeter: testutil.NewFakePerimeter(),
		Host:      &testutil.FakeHost{},
		Store:     production.NewMemoryStore(),
	}, core.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StartTracking(context.Background()); !errors.Is(err, core.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := c.Send(primitives.NewEvent(primitives.EventMotion, primitives.MotionEvent{})); !errors.Is(err, core.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted from Send, got %v", err)
	}
	c.Close()
	if err := c.Start(); !errors.Is(err, core.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestStartTrackingIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	if err := h.c.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.drain()

	starts, _ := h.motion.Counts()
	pStarts, _, _ := h.position.Counts()
	if starts != 1 || pStarts != 1 {
		t.Errorf("expected a single subscription, got motion=%d position=%d", starts, pStarts)
	}
	if n := h.sink.Count("Starting tracking"); n != 1 {
		t.Errorf("expected one start narration, got %d", n)
	}
	if b, _ := h.store.GetBool(core.KeySessionFlag, false); !b {
		t.Error("session flag not persisted")
	}
	if got := h.position.LastRequest(); got != core.DefaultPositionRequest() {
		t.Errorf("unexpected position request %+v", got)
	}
	st := h.status()
	if !st.Tracking || st.State != primitives.Moving {
		t.Errorf("unexpected status %+v", st)
	}
	fg, _, _ := h.host.Counts()
	if fg != 1 || h.host.Mode() != "foreground" {
		t.Errorf("expected one foreground request, got %d (%q)", fg, h.host.Mode())
	}
}

func TestStartPlacesStartAtCurrentFix(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	g := h.perimeter.Active()[primitives.GeofenceStart]
	if g.Center.Latitude != 52.52 || g.Center.Longitude != 13.405 {
		t.Errorf("START centred at %v", g.Center)
	}
	if g.RadiusMeters != primitives.DefaultGeofenceRadiusMeters || !g.Transitions.Has(primitives.TransitionExit) {
		t.Errorf("unexpected geofence %v", g)
	}
	if g.Transitions.Has(primitives.TransitionEnter) {
		t.Error("geofence should be exit-only")
	}
}

func TestDebounceBoundary(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.stillEnter()
	if !h.status().TimerArmed {
		t.Fatal("timer not armed after STILL enter")
	}

	h.clock.Add(179 * time.Second)
	if st := h.status(); st.State != primitives.Moving {
		t.Fatalf("committed before debounce elapsed: %v", st.State)
	}

	h.clock.Add(time.Second)
	h.waitState(primitives.Stationary)
	if n := h.sink.Count("USER_IS_STATIONARY"); n != 1 {
		t.Errorf("expected one stationary narration, got %d", n)
	}
	if v, _ := h.store.GetString(core.KeyTrackingState, ""); v != "v1:STATIONARY" {
		t.Errorf("persisted state = %q", v)
	}
	testutil.Eventually(t, wait, func() bool {
		_, bg, _ := h.host.Counts()
		return bg == 1
	}, "background requested")
}

func TestStillEnterRestartsDebounce(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.stillEnter()
	h.clock.Add(100 * time.Second)
	h.stillEnter()

	h.clock.Add(179 * time.Second)
	if st := h.status(); st.State != primitives.Moving {
		t.Fatalf("first timer should have been replaced, got %v", st.State)
	}
	h.clock.Add(time.Second)
	h.waitState(primitives.Stationary)
}

func TestStillExitCancelsTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.stillEnter()
	h.clock.Add(90 * time.Second)
	h.motionEvent(primitives.ActivityStill, primitives.TransitionExit, nil)
	if h.status().TimerArmed {
		t.Fatal("timer still armed after STILL exit")
	}
	h.clock.Add(5 * time.Minute)
	h.drain()
	if st := h.status(); st.State != primitives.Moving {
		t.Errorf("expected MOVING, got %v", st.State)
	}
	if h.sink.Count("STILL exit, cancel timer") != 1 {
		t.Error("missing cancel narration")
	}
}

func TestMovementWhileStationary(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)

	h.motionEvent(primitives.ActivityInVehicle, primitives.TransitionEnter, nil)
	if st := h.status(); st.State != primitives.Moving {
		t.Fatalf("expected MOVING, got %v", st.State)
	}
	testutil.Eventually(t, wait, func() bool {
		fg, _, _ := h.host.Counts()
		return fg == 2
	}, "foreground requested again")
}

func TestConfidenceGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.motionEvent(primitives.ActivityStill, primitives.TransitionEnter, intp(40))
	if h.status().TimerArmed {
		t.Fatal("low confidence event armed the timer")
	}
	h.motionEvent(primitives.ActivityStill, primitives.TransitionEnter, intp(50))
	if !h.status().TimerArmed {
		t.Fatal("event at threshold should pass")
	}
}

func TestCustomGuard(t *testing.T) {
	rejectVehicles := core.GuardFunc(func(evt primitives.Event) bool {
		m, ok := evt.Data.(primitives.MotionEvent)
		return !ok || m.Kind != primitives.ActivityInVehicle
	})
	h := newHarness(t, nil, core.WithGuard(rejectVehicles))
	h.start()
	h.stillEnter()
	h.motionEvent(primitives.ActivityInVehicle, primitives.TransitionEnter, nil)
	if !h.status().TimerArmed {
		t.Error("guarded event should not cancel the timer")
	}
}

func TestEventsIgnoredWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	h.stillEnter()
	h.location(1, 1)
	if err := h.c.HandlePerimeterExit(context.Background(), primitives.PerimeterEvent{
		TriggeringIDs: []primitives.GeofenceID{primitives.GeofenceLast},
	}); err != nil {
		t.Fatal(err)
	}
	st := h.status()
	if st.TimerArmed || st.LastLocation != nil || len(st.Geofences) != 0 {
		t.Errorf("inactive session mutated state: %+v", st)
	}
	if len(h.sink.Messages()) != 0 {
		t.Errorf("unexpected narration %v", h.sink.Messages())
	}
}

func TestLocationPlacesLastWhileMoving(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.location(52.5210, 13.4050)
	s := h.location(52.5230, 13.4050)

	testutil.Eventually(t, wait, func() bool {
		g, ok := h.perimeter.Active()[primitives.GeofenceLast]
		return ok && g.Center == s
	}, "LAST follows latest sample")

	st := h.status()
	if st.LastLocation == nil || *st.LastLocation != s {
		t.Errorf("last location = %v", st.LastLocation)
	}
	if h.sink.Count("distance: 222m") != 1 {
		t.Errorf("missing distance narration: %v", h.sink.Messages())
	}
}

func TestGeofenceIDsUnique(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	for i := 0; i < 20; i++ {
		h.location(52.52+float64(i)*0.001, 13.405)
	}
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)
	h.drain()

	active := h.perimeter.Active()
	if len(active) > 2 {
		t.Fatalf("too many registrations: %v", active)
	}
	for id := range active {
		if id != primitives.GeofenceStart && id != primitives.GeofenceLast {
			t.Errorf("unexpected id %s", id)
		}
	}
	st := h.status()
	if len(st.Geofences) != len(active) {
		t.Errorf("status tracks %d geofences, perimeter has %d", len(st.Geofences), len(active))
	}
}

func TestLastPlacementCoalesces(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.drain()

	h.perimeter.HoldUpserts()
	first := h.location(52.5300, 13.4050)
	h.location(52.5400, 13.4050)
	latest := h.location(52.5500, 13.4050)
	h.perimeter.ReleaseUpserts()

	testutil.Eventually(t, wait, func() bool {
		return len(h.perimeter.Upserts(primitives.GeofenceLast)) == 2
	}, "two LAST upserts")
	h.drain()
	time.Sleep(20 * time.Millisecond)
	h.drain()

	upserts := h.perimeter.Upserts(primitives.GeofenceLast)
	if len(upserts) != 2 {
		t.Fatalf("expected 2 coalesced upserts, got %d", len(upserts))
	}
	if upserts[0].Center != first || upserts[1].Center != latest {
		t.Errorf("coalescing kept the wrong samples: %v, %v", upserts[0].Center, upserts[1].Center)
	}
}

func TestLastPolicyOnStationary(t *testing.T) {
	cases := []struct {
		policy core.LastGeofencePolicy
		want   int
	}{
		{core.LastReplace, 2},
		{core.LastIfAbsent, 1},
		{core.LastNever, 1},
	}
	for _, tc := range cases {
		t.Run(tc.policy.String(), func(t *testing.T) {
			h := newHarness(t, nil, core.WithLastGeofencePolicy(tc.policy))
			h.start()
			h.location(52.53, 13.405)
			testutil.Eventually(t, wait, func() bool {
				return len(h.perimeter.Upserts(primitives.GeofenceLast)) == 1
			}, "LAST placed while moving")

			h.stillEnter()
			h.clock.Add(core.DefaultDebounce)
			h.waitState(primitives.Stationary)
			h.drain()
			time.Sleep(20 * time.Millisecond)
			h.drain()

			if n := len(h.perimeter.Upserts(primitives.GeofenceLast)); n != tc.want {
				t.Errorf("LAST upserts = %d, want %d", n, tc.want)
			}
		})
	}
}

func TestPerimeterExit(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	s := h.location(52.53, 13.405)
	testutil.Eventually(t, wait, func() bool {
		return len(h.perimeter.Upserts(primitives.GeofenceLast)) == 1
	}, "LAST placed while moving")
	h.drain()
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)

	err := h.c.HandlePerimeterExit(context.Background(), primitives.PerimeterEvent{
		TriggeringIDs: []primitives.GeofenceID{primitives.GeofenceLast},
		Transition:    primitives.TransitionExit,
	})
	if err != nil {
		t.Fatal(err)
	}
	st := h.status()
	if st.State != primitives.Moving {
		t.Fatalf("expected MOVING after exit, got %v", st.State)
	}
	h.drain()

	if _, ok := h.perimeter.Active()[primitives.GeofenceLast]; ok {
		t.Error("triggering geofence not removed")
	}
	if g := h.perimeter.Active()[primitives.GeofenceStart]; g.Center != s {
		t.Errorf("START not re-anchored at last location: %v", g.Center)
	}
	fg, _, _ := h.host.Counts()
	if fg != 2 {
		t.Errorf("expected foreground re-requested, got %d", fg)
	}
}

func TestPerimeterExitCancelsTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.stillEnter()
	if err := h.c.HandlePerimeterExit(context.Background(), primitives.PerimeterEvent{
		TriggeringIDs: []primitives.GeofenceID{primitives.GeofenceStart},
	}); err != nil {
		t.Fatal(err)
	}
	if h.status().TimerArmed {
		t.Fatal("timer survived perimeter exit")
	}
	h.clock.Add(core.DefaultDebounce)
	h.drain()
	if st := h.status(); st.State != primitives.Moving {
		t.Errorf("expected MOVING, got %v", st.State)
	}
}

func TestForegroundRefusalFallsBackToGeofence(t *testing.T) {
	h := newHarness(t, nil)
	h.host.SetRefuse(true)
	if err := h.c.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, wait, func() bool {
		return len(h.perimeter.Upserts(primitives.GeofenceStart)) == 2
	}, "START placed by the refusal fallback")

	if n := h.sink.Count("Failed to start foreground service"); n != 1 {
		t.Errorf("expected one refusal narration, got %d", n)
	}
	if len(h.perimeter.Active()) != 1 {
		t.Errorf("START registered twice: %v", h.perimeter.Active())
	}
	if !h.status().Tracking {
		t.Error("refusal must not end the session")
	}
}

func TestPermissionDeniedIsNarrated(t *testing.T) {
	h := newHarness(t, nil)
	h.motion.Err = primitives.ErrPermissionDenied
	h.start()
	testutil.Eventually(t, wait, func() bool {
		return h.sink.Count("motion.start skipped: permission denied") == 1
	}, "permission narration")
	if !h.status().Tracking {
		t.Error("missing permission must not end the session")
	}
}

func TestStopTracking(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.location(52.53, 13.405)
	h.stillEnter()

	if err := h.c.StopTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.drain()

	st := h.status()
	if st.Tracking || st.State != primitives.Stationary || st.TimerArmed || st.LastLocation != nil || len(st.Geofences) != 0 {
		t.Errorf("unexpected status after stop: %+v", st)
	}
	if h.motion.Active() || h.position.Streaming() {
		t.Error("subscriptions still active")
	}
	if len(h.perimeter.Active()) != 0 || h.perimeter.RemoveAllCount() != 1 {
		t.Errorf("geofences not cleared: %v", h.perimeter.Active())
	}
	if _, _, rel := h.host.Counts(); rel != 1 {
		t.Errorf("expected host release, got %d", rel)
	}
	if b, _ := h.store.GetBool(core.KeySessionFlag, true); b {
		t.Error("session flag still persisted")
	}

	// timer fire after stop must not commit
	h.clock.Add(core.DefaultDebounce)
	h.drain()
	if h.sink.Count("USER_IS_STATIONARY") != 0 {
		t.Error("cancelled timer fired")
	}

	changes := h.sink.Count("State changed")
	if err := h.c.StopTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.sink.Count("State changed") != changes {
		t.Error("second stop committed a transition")
	}
}

func TestStaleFixAfterStopDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	h.position.HoldQueries()
	if err := h.c.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.c.StopTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.position.ReleaseQueries()
	time.Sleep(30 * time.Millisecond)
	h.drain()

	if n := len(h.perimeter.Upserts(primitives.GeofenceStart)); n != 0 {
		t.Errorf("stale fix placed START %d times", n)
	}
	if len(h.status().Geofences) != 0 {
		t.Error("stale fix recorded a geofence")
	}
}

func TestCurrentLocationFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.position.FixErr = primitives.ErrNoFix
	if err := h.c.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, wait, func() bool {
		return h.sink.Count("Failed to get current location") == 1
	}, "query failure narrated")
	if len(h.perimeter.Active()) != 0 {
		t.Error("START placed without a fix")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := production.NewMemoryStore()
	h := newHarness(t, store)
	h.start()
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)
	h.c.Close()

	h2 := newHarness(t, store)
	st := h2.status()
	if st.State != primitives.Stationary || !st.Tracking {
		t.Fatalf("restored status %+v", st)
	}
	starts, _ := h2.motion.Counts()
	if starts != 0 {
		t.Error("construction must not subscribe")
	}

	resumed, err := h2.c.ResumeIfPreviouslyTracking(context.Background())
	if err != nil || !resumed {
		t.Fatalf("resume = %v, %v", resumed, err)
	}
	h2.drain()
	starts, _ = h2.motion.Counts()
	if starts != 1 || !h2.position.Streaming() {
		t.Error("resume did not re-arm subscriptions")
	}
	if h2.status().State != primitives.Stationary {
		t.Error("resume must keep the persisted state")
	}
	if h2.sink.Count("Resuming tracking") != 1 {
		t.Errorf("missing resume narration: %v", h2.sink.Messages())
	}
}

func TestResumeWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	resumed, err := h.c.ResumeIfPreviouslyTracking(context.Background())
	if err != nil || resumed {
		t.Fatalf("resume = %v, %v", resumed, err)
	}
	h.drain()
	if starts, _ := h.motion.Counts(); starts != 0 {
		t.Error("resume without session subscribed")
	}
}

func TestCorruptPersistedState(t *testing.T) {
	store := production.NewMemoryStore()
	store.PutString(core.KeyTrackingState, "PARKED")
	h := newHarness(t, store)
	if st := h.status(); st.State != primitives.Moving || st.Tracking {
		t.Errorf("expected MOVING default, got %+v", st)
	}
}

func TestLegacyPersistedState(t *testing.T) {
	store := production.NewMemoryStore()
	store.PutString(core.KeyTrackingState, "STATIONARY")
	h := newHarness(t, store)
	if st := h.status(); st.State != primitives.Stationary {
		t.Errorf("legacy name not accepted: %v", st.State)
	}
}

func TestBootResumes(t *testing.T) {
	store := production.NewMemoryStore()
	store.PutBool(core.KeySessionFlag, true)
	h := newHarness(t, store)

	resumed, err := core.Boot(context.Background(), h.c)
	if err != nil || !resumed {
		t.Fatalf("Boot = %v, %v", resumed, err)
	}
	if h.sink.Count("BOOT_COMPLETED") != 1 {
		t.Error("boot not narrated")
	}
	testutil.Eventually(t, wait, func() bool { return h.position.Streaming() }, "position stream resumed")
}

func TestSendEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	evt := primitives.NewEvent(primitives.EventMotion, primitives.MotionEvent{
		Kind:       primitives.ActivityStill,
		Transition: primitives.TransitionEnter,
	})
	if err := h.c.Send(evt); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, wait, func() bool { return h.status().TimerArmed }, "timer armed via Send")

	if err := h.c.Send(primitives.NewEvent("bogus", 42)); err == nil {
		t.Error("expected error for unsupported payload")
	}
}

type sliceSource struct{ ch chan primitives.Event }

func (s sliceSource) Events() <-chan primitives.Event { return s.ch }

func TestEventSourcePump(t *testing.T) {
	src := sliceSource{ch: make(chan primitives.Event, 4)}
	h := newHarness(t, nil, core.WithEventSource(src))
	h.start()
	src.ch <- primitives.NewEvent(primitives.EventLocation, primitives.LocationSample{Latitude: 52.6, Longitude: 13.4})
	testutil.Eventually(t, wait, func() bool {
		st := h.status()
		return st.LastLocation != nil && st.LastLocation.Latitude == 52.6
	}, "location pumped")
	close(src.ch)
}

func TestPublisherReceivesTransitions(t *testing.T) {
	ch := make(chan core.StateTransition, 4)
	h := newHarness(t, nil, core.WithPublisher(production.NewChannelPublisher(ch)))
	h.start()
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)

	select {
	case tr := <-ch:
		if tr.From != primitives.Moving || tr.To != primitives.Stationary || tr.Reason != "debounce elapsed" {
			t.Errorf("unexpected transition %+v", tr)
		}
	case <-time.After(wait):
		t.Fatal("no transition published")
	}
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t, nil, core.WithDebounce(time.Minute))
	h.start()

	h.location(52.5210, 13.4050)
	latest := h.location(52.5250, 13.4050)
	h.stillEnter()
	h.clock.Add(time.Minute)
	h.waitState(primitives.Stationary)
	testutil.Eventually(t, wait, func() bool {
		return h.perimeter.Active()[primitives.GeofenceLast].Center == latest
	}, "LAST at final sample")

	if err := h.c.HandlePerimeterExit(context.Background(), primitives.PerimeterEvent{
		TriggeringIDs: []primitives.GeofenceID{primitives.GeofenceLast},
	}); err != nil {
		t.Fatal(err)
	}
	h.waitState(primitives.Moving)

	if err := h.c.StopTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.drain()

	for _, want := range []string{
		"Starting tracking",
		"STILL enter, scheduling 1m0s check",
		"USER_IS_STATIONARY",
		"State changed to STATIONARY",
		"GeoFence exit detected",
		"State changed to MOVING",
		"Stopping tracking",
	} {
		if h.sink.Count(want) == 0 {
			t.Errorf("missing narration %q in %v", want, h.sink.Messages())
		}
	}
	if len(h.perimeter.Active()) != 0 {
		t.Error("geofences left after stop")
	}
}

func TestLastPlacementContinuesAfterResume(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.drain()

	h.perimeter.HoldUpserts()
	h.location(52.5300, 13.4050)
	resumed, err := h.c.ResumeIfPreviouslyTracking(context.Background())
	if err != nil || !resumed {
		t.Fatalf("resume = %v, %v", resumed, err)
	}
	h.perimeter.ReleaseUpserts()
	h.drain()

	latest := h.location(52.5400, 13.4050)
	testutil.Eventually(t, wait, func() bool {
		upserts := h.perimeter.Upserts(primitives.GeofenceLast)
		return len(upserts) > 0 && upserts[len(upserts)-1].Center == latest
	}, "LAST follows samples after resume")
}

type blockingPublisher struct {
	release chan struct{}
	got     chan core.StateTransition
}

func (p *blockingPublisher) Publish(ctx context.Context, tr core.StateTransition) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.got <- tr
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestSlowPublisherDoesNotStallLoop(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{}), got: make(chan core.StateTransition, 4)}
	h := newHarness(t, nil, core.WithPublisher(pub))
	h.start()
	h.stillEnter()
	h.clock.Add(core.DefaultDebounce)
	h.waitState(primitives.Stationary)

	// the loop keeps serving while the publish is stuck
	h.motionEvent(primitives.ActivityWalking, primitives.TransitionEnter, nil)
	h.waitState(primitives.Moving)

	close(pub.release)
	for _, want := range []primitives.TrackingState{primitives.Stationary, primitives.Moving} {
		select {
		case tr := <-pub.got:
			if tr.To != want {
				t.Errorf("published %s, want %s", tr.To, want)
			}
		case <-time.After(wait):
			t.Fatalf("transition to %s not published", want)
		}
	}
}

func TestStopClearsLastLocation(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.location(52.5300, 13.4050)
	if err := h.c.StopTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if loc := h.status().LastLocation; loc != nil {
		t.Errorf("last location survived stop: %v", loc)
	}
}
