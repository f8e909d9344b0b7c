package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"blogchat/internal/config"
)

const defaultChannel = "chat:fanout"

// RedisBackplane shares published frames between instances over Redis pub/sub.
type RedisBackplane struct {
	client  *redis.Client
	channel string
}

// NewRedisBackplane connects to cfg.Redis.URL. Without a URL it returns a nil
// Backplane and the hub delivers in-process.
func NewRedisBackplane(cfg *config.Config) (Backplane, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("redis: ping: %w", err)
	}

	channel := cfg.Redis.Channel
	if channel == "" {
		channel = defaultChannel
	}
	b := &RedisBackplane{client: c, channel: channel}
	return b, func() { _ = b.Close() }, nil
}

func (b *RedisBackplane) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}

func (b *RedisBackplane) Subscribe(ctx context.Context, fn func(payload []byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}

func (b *RedisBackplane) Close() error {
	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
