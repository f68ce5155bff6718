package redisbus

import (
	"context"

	"github.com/go-redis/redis/v8"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
)

// Subscriber reads envelopes published by any node
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  lazarus.Logger
}

func NewSubscriber(client *redis.Client, channel string, logger lazarus.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel, logger: logger}
}

// Listen calls handle for every envelope until ctx ends. Malformed
// messages are logged and skipped.
func (s *Subscriber) Listen(ctx context.Context, handle func(Envelope)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to subscribe to realtime channel").
			WithMetadata(map[string]any{"channel": s.channel})
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			env, err := Decode(msg.Payload)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("skipping malformed realtime message", "channel", msg.Channel, "error", err)
				}
				continue
			}
			handle(env)
		}
	}
}
