// Package testutil provides recording fakes for every coordinator port so
// the same scenarios can run against the coordinator without platform
// services.
package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/primitives"
)

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// FakeMotion records Start/Stop calls.
type FakeMotion struct {
	mu     sync.Mutex
	Err    error
	starts int
	stops  int
	active bool
}

func (m *FakeMotion) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.starts++
	m.active = true
	return nil
}

func (m *FakeMotion) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.stops++
	m.active = false
	return nil
}

func (m *FakeMotion) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

func (m *FakeMotion) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// FakePosition serves a fixed one-shot fix and records stream control.
type FakePosition struct {
	mu        sync.Mutex
	Fix       primitives.LocationSample
	FixErr    error
	streaming bool
	starts    int
	stops     int
	queries   int
	lastReq   core.PositionRequest
	queryGate chan struct{}
}

// NewFakePosition returns a source whose fix is at lat/lng.
func NewFakePosition(lat, lng float64) *FakePosition {
	return &FakePosition{Fix: primitives.LocationSample{Latitude: lat, Longitude: lng}}
}

// HoldQueries makes CurrentLocation block until ReleaseQueries.
func (p *FakePosition) HoldQueries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryGate = make(chan struct{})
}

func (p *FakePosition) ReleaseQueries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryGate != nil {
		close(p.queryGate)
		p.queryGate = nil
	}
}

func (p *FakePosition) StartContinuous(ctx context.Context, req core.PositionRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	p.streaming = true
	p.lastReq = req
	return nil
}

func (p *FakePosition) StopContinuous(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.streaming = false
	return nil
}

func (p *FakePosition) CurrentLocation(ctx context.Context) (primitives.LocationSample, error) {
	p.mu.Lock()
	p.queries++
	gate := p.queryGate
	fix, err := p.Fix, p.FixErr
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return primitives.LocationSample{}, ctx.Err()
		}
	}
	return fix, err
}

func (p *FakePosition) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streaming
}

func (p *FakePosition) Counts() (starts, stops, queries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops, p.queries
}

func (p *FakePosition) LastRequest() core.PositionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// FakePerimeter keeps at most one registration per id, like a provider
// level upsert.
type FakePerimeter struct {
	mu        sync.Mutex
	active    map[primitives.GeofenceID]primitives.Geofence
	upserts   []primitives.Geofence
	removed   []primitives.GeofenceID
	removeAll int
	gate      chan struct{}
}

func NewFakePerimeter() *FakePerimeter {
	return &FakePerimeter{active: map[primitives.GeofenceID]primitives.Geofence{}}
}

// HoldUpserts makes Upsert block until ReleaseUpserts.
func (p *FakePerimeter) HoldUpserts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
}

func (p *FakePerimeter) ReleaseUpserts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

func (p *FakePerimeter) Upsert(ctx context.Context, fence primitives.Geofence) error {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[fence.ID] = fence
	p.upserts = append(p.upserts, fence)
	return nil
}

func (p *FakePerimeter) Remove(ctx context.Context, ids ...primitives.GeofenceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.active, id)
		p.removed = append(p.removed, id)
	}
	return nil
}

func (p *FakePerimeter) RemoveAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeAll++
	clear(p.active)
	return nil
}

// Active returns the live registrations.
func (p *FakePerimeter) Active() map[primitives.GeofenceID]primitives.Geofence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[primitives.GeofenceID]primitives.Geofence, len(p.active))
	for k, v := range p.active {
		out[k] = v
	}
	return out
}

// Upserts returns every upsert issued for id, oldest first.
func (p *FakePerimeter) Upserts(id primitives.GeofenceID) []primitives.Geofence {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []primitives.Geofence
	for _, g := range p.upserts {
		if g.ID == id {
			out = append(out, g)
		}
	}
	return out
}

func (p *FakePerimeter) Removed() []primitives.GeofenceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]primitives.GeofenceID(nil), p.removed...)
}

func (p *FakePerimeter) RemoveAllCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeAll
}

// FakeHost records execution mode requests. Refuse makes RequestForeground
// fail with primitives.ErrExecutionRefused.
type FakeHost struct {
	mu         sync.Mutex
	Refuse     bool
	foreground int
	background int
	releases   int
	mode       string
}

func (h *FakeHost) RequestForeground(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground++
	if h.Refuse {
		return primitives.ErrExecutionRefused
	}
	h.mode = "foreground"
	return nil
}

func (h *FakeHost) RequestBackground(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.background++
	h.mode = "background"
	return nil
}

func (h *FakeHost) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases++
	h.mode = ""
	return nil
}

func (h *FakeHost) SetRefuse(refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Refuse = refuse
}

func (h *FakeHost) Counts() (foreground, background, releases int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.foreground, h.background, h.releases
}

func (h *FakeHost) Mode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// RecordingSink keeps every appended entry.
type RecordingSink struct {
	mu      sync.Mutex
	entries []primitives.LogEntry
}

func (s *RecordingSink) Append(message string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, primitives.NewLogEntry(message, at))
}

func (s *RecordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message
	}
	return out
}

// Count returns how many messages contain substr.
func (s *RecordingSink) Count(substr string) int {
	n := 0
	for _, m := range s.Messages() {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}
