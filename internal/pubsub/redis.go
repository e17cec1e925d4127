package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog/log"
)

// Redis publishes each room on channel prefix:room and pattern-subscribes to
// prefix:* so every node sees every room.
type Redis struct {
	client *redis.Client
	prefix string
	ps     *redis.PubSub
}

func NewRedis(addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Publish(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(r.prefix+":"+msg.Room, data).Err()
}

func (r *Redis) Subscribe(h Handler) error {
	ps := r.client.PSubscribe(r.prefix + ":*")
	if _, err := ps.Receive(); err != nil {
		ps.Close()
		return fmt.Errorf("subscribe redis: %w", err)
	}
	r.ps = ps

	go func() {
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Warn().Err(err).Str("channel", m.Channel).Msg("failed to decode broker message")
				continue
			}
			h(msg)
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	if r.ps != nil {
		r.ps.Close()
	}
	return r.client.Close()
}
