package cluster

import (
	"context"
	"fmt"
	"socketd/internal/logging"
	"socketd/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans envelopes out over Redis pub/sub.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisBus(client redis.UniversalClient, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Name() string { return "redis" }

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := env.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		metrics.ClusterErrors.WithLabelValues(b.Name(), "publish").Inc()
		return fmt.Errorf("redis publish: %w", err)
	}
	metrics.ClusterPublished.WithLabelValues(b.Name()).Inc()
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed so that publishes made right
	// after Subscribe returns control are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	log := logging.With("cluster")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			var env Envelope
			if err := env.UnmarshalBinary([]byte(msg.Payload)); err != nil {
				metrics.ClusterErrors.WithLabelValues(b.Name(), "decode").Inc()
				log.Warn().Err(err).Str("bus", b.Name()).Msg("dropping undecodable cluster envelope")
				continue
			}
			h(env)
		}
	}
}

// Close leaves the client to its owner.
func (b *RedisBus) Close() error { return nil }
