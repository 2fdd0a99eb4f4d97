package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// envelope is the message published on the Redis channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisRelay publishes broadcasts to a Redis pub/sub channel and delivers
// everything received on that channel to the local Hub, so clients connected
// to any instance see every event. Redis pub/sub keeps no history; an instance
// that is not subscribed at publish time misses the event.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	mu   sync.Mutex
	sub  *redis.PubSub
	done chan struct{}
}

// NewRedisRelay creates a relay on the given channel.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}
}

// Broadcast implements Broadcaster. The count is the number of subscribed
// instances Redis handed the message to.
func (r *RedisRelay) Broadcast(ctx context.Context, event string, payload any) (int, error) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		return 0, err
	}
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return 0, err
	}
	receivers, err := r.client.Publish(ctx, r.channel, msg).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", event, err)
	}
	return int(receivers), nil
}

// Start subscribes to the channel and begins relaying in the background.
// It returns once Redis has confirmed the subscription.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return errors.New("redis relay already started")
	}

	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	r.sub = sub
	r.done = make(chan struct{})
	go r.relay(sub.Channel(), r.done)

	r.logger.Info("redis relay subscribed", slog.String("channel", r.channel))
	return nil
}

// Close unsubscribes and waits for the relay goroutine to exit.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

func (r *RedisRelay) relay(messages <-chan *redis.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.logger.Warn("discarding malformed relay message", slog.Any("error", err))
			continue
		}
		if err := ValidateEventName(env.Event); err != nil {
			r.logger.Warn("discarding relay message", slog.Any("error", err))
			continue
		}
		r.hub.Deliver(NewSSEEvent(env.Event, string(env.Data)))
	}
}

var _ Broadcaster = (*RedisRelay)(nil)
