package extensibility

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/comalice/trackcoord/internal/core"
)

// LoggingCommandRunner wraps a CommandRunner and adds logging around execution.
type LoggingCommandRunner struct {
	inner core.CommandRunner
	log   *logrus.Entry
}

// NewLoggingCommandRunner creates a new LoggingCommandRunner wrapping the given inner runner.
func NewLoggingCommandRunner(inner core.CommandRunner, log *logrus.Entry) *LoggingCommandRunner {
	if inner == nil {
		inner = core.DefaultCommandRunner{}
	}
	if log == nil {
		log = logrus.WithField("component", "commands")
	}
	return &LoggingCommandRunner{inner: inner, log: log}
}

// Run logs before and after delegating to the inner runner.
func (r *LoggingCommandRunner) Run(ctx context.Context, cmd core.Command) error {
	entry := r.log.WithField("command", cmd.Name)
	entry.Debug("executing")
	start := time.Now()
	err := r.inner.Run(ctx, cmd)
	entry = entry.WithField("elapsed", time.Since(start))
	if err != nil {
		entry.WithError(err).Debug("completed with error")
	} else {
		entry.Debug("completed")
	}
	return err
}

// ThrottledCommandRunner spaces provider calls out to respect platform
// quotas, e.g. geofence registration limits.
type ThrottledCommandRunner struct {
	inner   core.CommandRunner
	limiter *rate.Limiter
}

// NewThrottledCommandRunner allows perSecond calls with the given burst.
func NewThrottledCommandRunner(inner core.CommandRunner, perSecond float64, burst int) *ThrottledCommandRunner {
	if inner == nil {
		inner = core.DefaultCommandRunner{}
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledCommandRunner{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *ThrottledCommandRunner) Run(ctx context.Context, cmd core.Command) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s throttled: %w", cmd.Name, err)
	}
	return r.inner.Run(ctx, cmd)
}
