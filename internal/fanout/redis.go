// Package fanout relays room broadcasts between server instances over Redis
// pub/sub so every instance's subscribers receive every message.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/log"
)

// LocalPublisher delivers a payload to this instance's subscribers.
type LocalPublisher interface {
	Publish(topic string, body []byte) (delivered, dropped int)
}

// RedisConfig holds connection settings for the relay.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces relay channels, e.g. "campus-chat:".
	Prefix string
}

// RedisRelay publishes broadcasts to Redis and forwards relayed payloads into the
// local broker.
type RedisRelay struct {
	client *redis.Client
	prefix string
	local  LocalPublisher
	logger *zerolog.Logger
}

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(ctx context.Context, cfg RedisConfig, local LocalPublisher, logger *zerolog.Logger) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "fanout").Logger()
	return &RedisRelay{
		client: client,
		prefix: cfg.Prefix,
		local:  local,
		logger: &l,
	}, nil
}

// Broadcast publishes body for topic on the shared channel. Local subscribers
// receive it through Run like every other instance.
func (r *RedisRelay) Broadcast(ctx context.Context, topic string, body []byte) error {
	if err := r.client.Publish(ctx, r.prefix+topic, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run forwards relayed room payloads to the local publisher until ctx is done.
// ready, when non-nil, is closed once the pattern subscription is active.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pattern := r.prefix + core.TopicPrefix + "*"
	pubsub := r.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info().Str("pattern", pattern).Msg("redis relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis relay channel closed")
			}
			topic := strings.TrimPrefix(msg.Channel, r.prefix)
			if _, ok := core.ParseRoomTopic(topic); !ok {
				r.logger.Warn().Str("channel", msg.Channel).Msg("ignoring relay message on unexpected channel")
				continue
			}
			r.local.Publish(topic, []byte(msg.Payload))
		}
	}
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
