package main

import (
	"context"
	"errors"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
)

type redisBus interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// redisPublisher fans events out on a Redis pub/sub channel. The payload is
// the stored envelope verbatim, so consumers see exactly what was committed.
type redisPublisher struct {
	bus     redisBus
	channel string
}

func newRedisPublisher(bus redisBus, channel string) (*redisPublisher, error) {
	if bus == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	return &redisPublisher{bus: bus, channel: channel}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	return p.bus.Publish(ctx, p.channel, []byte(event.Payload))
}
