package alert

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliamunaev/orderdesk/internal/model"
)

const DefaultChannel = "orderdesk:new-orders"

// publisher is the part of a redis client the sink needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each event as JSON on a redis pub/sub channel.
type RedisSink struct {
	rdb     publisher
	channel string
}

func NewRedisSink(rdb redis.UniversalClient, channel string) *RedisSink {
	return newRedisSink(rdb, channel)
}

func newRedisSink(rdb publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{rdb: rdb, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, ev model.NewOrderEvent) error {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		model.NewOrderEvent
	}{Type: ev.Type(), NewOrderEvent: ev})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", s.channel)
	}
	return nil
}
