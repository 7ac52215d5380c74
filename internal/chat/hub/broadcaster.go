// Package hub fans chat events out to WebSocket sessions. Rooms are keyed
// "room:<id>". The memory broadcaster serves a single process; the redis
// broadcaster shares fanout across processes.
package hub

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event is one wire frame delivered to every subscriber of a room.
type Event struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// RoomKey builds the stream key for a room id.
func RoomKey(roomID snowflake.ID) string {
	return "room:" + roomID.String()
}

type Subscription interface {
	Events() <-chan Event
	Close()
}

type Broadcaster interface {
	Publish(ctx context.Context, key string, event Event) error
	Subscribe(ctx context.Context, key string) (Subscription, error)
}

func NewBroadcaster(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Broadcaster, error) {
	switch cfg.ChatBroker {
	case "", "memory":
		return NewHub(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return client.Close()
			},
		})
		return NewRedisBroadcaster(client, log), nil
	default:
		return nil, fmt.Errorf("unsupported chat broker %q", cfg.ChatBroker)
	}
}

var Module = fx.Module("chat.hub",
	fx.Provide(NewBroadcaster),
)
