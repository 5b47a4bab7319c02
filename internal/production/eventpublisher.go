package production

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/comalice/trackcoord/internal/core"
)

// ChannelPublisher forwards committed transitions to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch chan<- core.StateTransition
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- core.StateTransition) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, t core.StateTransition) error {
	select {
	case p.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil // Non-blocking drop
	}
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}

// DefaultTransitionChannel is the pub/sub channel RedisPublisher uses when
// none is configured.
const DefaultTransitionChannel = "tracking:transitions"

// RedisPublisher publishes transitions as JSON on a Redis pub/sub channel.
// It does not own the client.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultTransitionChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, t core.StateTransition) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("json marshal transition: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return nil
}

// MultiPublisher fans a transition out to several publishers. The first
// error is returned after every publisher was tried.
type MultiPublisher []core.StatePublisher

func (m MultiPublisher) Publish(ctx context.Context, t core.StateTransition) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiPublisher) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
