package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tandem-api/internal/observability/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backplane is the cross-process transport for broadcasts. A message
// published on one server process reaches the hubs of every process,
// including the publisher's own (the hub filters its own echoes by origin).
type Backplane interface {
	// Publish sends an envelope to all processes. Best-effort: errors are
	// the caller's to log and swallow, never to propagate to the write path.
	Publish(ctx context.Context, payload []byte) error

	// Subscribe delivers every published envelope to handler until ctx is
	// cancelled. Runs its own receive loop; returns after the subscription
	// is established.
	Subscribe(ctx context.Context, handler func(payload []byte)) error

	Close() error
}

// envelope is the wire format carried across the backplane.
type envelope struct {
	Origin string          `json:"origin"` // hub instance that published it
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"` // marshalled Event
}

// publishTimeout bounds a single backplane publish so an unresponsive redis
// cannot stall broadcast dispatch.
const publishTimeout = 2 * time.Second

// RedisBackplane implements Backplane over a redis pub/sub channel.
//
// When redis is unavailable the system degrades to same-process-only
// delivery: publishes fail (logged by the hub), local clients still
// receive events.
type RedisBackplane struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
	pubsub  *redis.PubSub
}

// NewRedisBackplane creates a backplane on the given pub/sub channel.
func NewRedisBackplane(client *redis.Client, channel string, log *logger.Logger) *RedisBackplane {
	return &RedisBackplane{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// Publish implements Backplane.
func (b *RedisBackplane) Publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to backplane channel %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe implements Backplane. The receive loop exits when ctx is
// cancelled or the subscription is closed.
func (b *RedisBackplane) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)

	// Force the subscription to be established before returning, so a
	// broadcast issued right after startup is not silently missed locally.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to backplane channel %s: %w", b.channel, err)
	}

	go func() {
		ch := b.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	b.log.Info(ctx, "realtime backplane subscribed",
		logger.Module("realtime"),
		logger.Action("subscribe"),
		zap.String("channel", b.channel),
	)
	return nil
}

// Close implements Backplane.
func (b *RedisBackplane) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
