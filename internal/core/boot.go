package core

import "context"

// Boot is the one-shot entry point the host invokes after a device or
// process restart.
func Boot(ctx context.Context, c *Coordinator) (bool, error) {
	c.ports.Sink.Append("BOOT_COMPLETED received; attempting resume", c.clock.Now())
	return c.ResumeIfPreviouslyTracking(ctx)
}
