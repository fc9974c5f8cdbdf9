package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel events are mirrored to.
const DefaultChannel = "support-desk:events"

// Publisher is the subset of go-redis used to mirror events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// redisFanout delivers events locally and mirrors them to a Redis channel
// so other processes can observe the ticket stream.
type redisFanout struct {
	local   Dispatcher
	client  Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisFanout wraps local. Redis failures are logged, never returned:
// local delivery is authoritative.
func NewRedisFanout(local Dispatcher, client Publisher, channel string, logger *zap.Logger) Dispatcher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisFanout{local: local, client: client, channel: channel, logger: logger}
}

func (f *redisFanout) Publish(ctx context.Context, event Event) error {
	err := f.local.Publish(ctx, event)

	body, mErr := json.Marshal(event)
	if mErr != nil {
		f.logger.Warn("encode event for fan-out", zap.String("event_type", string(event.Type)), zap.Error(mErr))
		return err
	}
	if pErr := f.client.Publish(ctx, f.channel, body).Err(); pErr != nil {
		f.logger.Warn("publish event to redis",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(pErr))
	}
	return err
}

func (f *redisFanout) Subscribe(eventType EventType, handler EventHandler) {
	f.local.Subscribe(eventType, handler)
}

// Listen consumes events mirrored to channel until ctx is cancelled.
// Payloads decode as generic JSON values.
func Listen(ctx context.Context, client *redis.Client, channel string, handler EventHandler) error {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			if err := handler(ctx, event); err != nil {
				return err
			}
		}
	}
}
