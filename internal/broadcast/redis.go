package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel every dialogd process publishes to
// and subscribes on for cross-process delivery.
const Channel = "broadcast_channel"

// RedisBridge is the Publisher implementation backing cross-process
// broadcast: Publish pushes an Envelope onto Channel, and Listen runs a
// background loop feeding received envelopes back into a Hub.
type RedisBridge struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger
}

// NewRedisBridge connects to addr and subscribes to Channel. The returned
// bridge must be wired into a Hub via AttachPublisher, and its Listen
// method run in a goroutine for the subscription to do anything.
func NewRedisBridge(addr string, logger *slog.Logger) (*RedisBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	pubsub := client.Subscribe(context.Background(), Channel)
	return &RedisBridge{client: client, pubsub: pubsub, logger: logger}, nil
}

// Publish JSON-encodes env and publishes it to Channel.
func (b *RedisBridge) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel, payload).Err()
}

// Listen blocks, feeding every message received on Channel into hub until
// ctx is canceled or the subscription is closed. Malformed payloads are
// logged and skipped rather than aborting the loop.
func (b *RedisBridge) Listen(ctx context.Context, hub *Hub) error {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Error("broadcast: invalid redis payload", "error", err)
				continue
			}
			hub.ReceiveRemote(env)
		}
	}
}

// Close tears down the subscription and the underlying client.
func (b *RedisBridge) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return err
	}
	return b.client.Close()
}
