package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/comalice/trackcoord/internal/primitives"
)

// Command is one side-effecting call into a port.
type Command struct {
	Name string
	Do   func(ctx context.Context) error
}

// CommandRunner executes commands on the runner goroutine.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// DefaultCommandRunner calls the command directly.
type DefaultCommandRunner struct{}

func (DefaultCommandRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Do == nil {
		return nil
	}
	return cmd.Do(ctx)
}

// queued pairs a command with the continuation posted back to the loop.
type queued struct {
	cmd  Command
	then func(err error)
	// barrier commands bypass the runner
	barrier chan struct{}
}

// outbox is an unbounded FIFO so the serialized loop never blocks on a
// slow provider.
type outbox struct {
	mu     sync.Mutex
	items  []queued
	signal chan struct{}
}

func newOutbox() *outbox {
	return &outbox{signal: make(chan struct{}, 1)}
}

func (o *outbox) push(q queued) {
	o.mu.Lock()
	o.items = append(o.items, q)
	o.mu.Unlock()
	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// next blocks until an item is available or done is closed.
func (o *outbox) next(done <-chan struct{}) (queued, bool) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			q := o.items[0]
			o.items[0] = queued{}
			o.items = o.items[1:]
			o.mu.Unlock()
			return q, true
		}
		o.mu.Unlock()
		select {
		case <-o.signal:
		case <-done:
			return queued{}, false
		}
	}
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// runCommands is the command runner goroutine.
func (c *Coordinator) runCommands() {
	defer c.wg.Done()
	for {
		q, ok := c.out.next(c.done)
		if !ok {
			return
		}
		if q.barrier != nil {
			close(q.barrier)
			continue
		}
		err := c.execute(q.cmd)
		if err == nil && q.then == nil {
			continue
		}
		then := q.then
		name := q.cmd.Name
		c.post(func() {
			if err != nil {
				c.commandFailed(name, err)
			}
			if then != nil {
				then(err)
			}
		})
	}
}

func (c *Coordinator) execute(cmd Command) (err error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.commandTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", primitives.ErrProviderCallFailure, cmd.Name, r)
		}
	}()
	return c.runner.Run(ctx, cmd)
}
