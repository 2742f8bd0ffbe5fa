package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel the feed API publishes to.
const DefaultRedisChannel = "EVENT_FEED_UPDATED"

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisSource delivers events published on a Redis pub/sub channel.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisSource(client *redis.Client, channel string, logger *slog.Logger) *RedisSource {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSource{client: client, channel: channel, logger: logger}
}

func (s *RedisSource) Subscribe(ctx context.Context, deliver func([]byte)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel)

	// Wait for the subscription confirmation so errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to redis channel %s: %w", s.channel, err)
	}

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Debug("redis subscription ready", "channel", s.channel)
	return func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("closing redis subscription", "channel", s.channel, "error", err)
		}
	}, nil
}
