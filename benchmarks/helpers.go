// Package benchmarks measures coordinator event throughput and state commit
// latency over in-memory providers.
package benchmarks

import (
	"io"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/production"
	"github.com/comalice/trackcoord/testutil"
)

// Fixture is a started coordinator in an active session.
type Fixture struct {
	C         *core.Coordinator
	Clock     *clock.Mock
	Perimeter *testutil.FakePerimeter
}

// NewFixture starts a coordinator on a mock clock and begins tracking.
func NewFixture(b testing.TB, opts ...core.Option) *Fixture {
	b.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &Fixture{Clock: clock.NewMock(), Perimeter: testutil.NewFakePerimeter()}
	opts = append([]core.Option{core.WithClock(f.Clock), core.WithLogger(logrus.NewEntry(logger))}, opts...)
	c, err := core.NewCoordinator(core.Ports{
		Motion:    &testutil.FakeMotion{},
		Position:  testutil.NewFakePosition(51.5074, -0.1278),
		Perimeter: f.Perimeter,
		Host:      &testutil.FakeHost{},
		Sink:      production.NewRingSink(64),
		Store:     production.NewMemoryStore(),
	}, opts...)
	if err != nil {
		b.Fatal(err)
	}
	if err := c.Start(); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { c.Close() })
	f.C = c
	return f
}
