package notify

import (
	"context"
	"encoding/json"

	"github.com/imrenagi/go-drive-upload/config"
	"github.com/redis/go-redis/v9"
)

// Redis publishes every event on a single pub/sub channel. Messages carry
// the token so subscribers can filter.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(cfg config.RedisConfig) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr: cfg.Addr,
		}),
		channel: cfg.Channel,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Notify(ctx context.Context, token, event string, payload any) error {
	b, err := json.Marshal(Message{Token: token, Event: event, Data: payload})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
