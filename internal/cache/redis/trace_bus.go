package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// traceChannel is the Pub/Sub channel carrying per-tick arbiter traces.
const traceChannel = "auction:traces"

// TraceBus implements domain.TraceBus over Redis Pub/Sub. Traces are
// ephemeral: a subscriber that is not listening at publish time simply
// misses the tick, which is fine for a live dashboard.
type TraceBus struct {
	client *Client
}

// NewTraceBus creates a TraceBus backed by the given Client.
func NewTraceBus(c *Client) *TraceBus {
	return &TraceBus{client: c}
}

// PublishTrace sends one tick's trace payload to the trace channel.
func (tb *TraceBus) PublishTrace(ctx context.Context, payload []byte) error {
	ctx, cancel := bound(ctx)
	defer cancel()
	if err := tb.client.rdb.Publish(ctx, traceChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish trace: %w", err)
	}
	return nil
}

// SubscribeTraces returns a channel that emits raw trace payloads until
// the context is cancelled. Used by the monitor mode.
func (tb *TraceBus) SubscribeTraces(ctx context.Context) (<-chan []byte, error) {
	pubsub := tb.client.rdb.Subscribe(ctx, traceChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe traces: %w", err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.TraceBus = (*TraceBus)(nil)
