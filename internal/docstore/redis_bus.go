package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisChannelPrefix namespaces change notifications on the Redis server.
const redisChannelPrefix = "docstore:changes:"

// RedisBus is a Bus backed by Redis pub/sub, so every server instance
// sharing the remote store sees every write.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a bus over an already connected Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func redisChannel(id string) string {
	return redisChannelPrefix + id
}

// Publish sends change on the document's channel.
func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling change: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannel(change.ID), payload).Err(); err != nil {
		return fmt.Errorf("publishing change: %w", err)
	}
	return nil
}

// Subscribe listens on the document's channel. It returns once Redis has
// confirmed the subscription, so no publish issued afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context, id string) (<-chan Change, func(), error) {
	ps := b.client.Subscribe(ctx, redisChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", id, err)
	}

	out := make(chan Change, subscriptionBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					slog.Warn("dropping malformed change notification",
						slog.String("channel", msg.Channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}

var _ Bus = (*RedisBus)(nil)
