package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chatboard/chatboard/internal/observability/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroadcaster publishes events through redis pub/sub so fanout reaches
// sessions on every process.
type RedisBroadcaster struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBroadcaster(client *redis.Client, log *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: client,
		log:    log.Named("chat.hub.redis"),
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, key string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, key, body).Err(); err != nil {
		return err
	}
	metrics.Chat().MessagePublished(event.Type)
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, key string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, DefaultSubscriberBuffer),
	}

	go func() {
		defer close(sub.ch)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("malformed hub frame", zap.Error(err))
				continue
			}
			select {
			case sub.ch <- event:
			default:
				metrics.Chat().FanoutDropped()
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

// Close is idempotent.
func (s *redisSubscription) Close() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}
