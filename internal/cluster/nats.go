package cluster

import (
	"context"
	"fmt"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus fans envelopes out over a core NATS subject.
type NATSBus struct {
	nc      *nats.Conn
	subject string
}

func DialNATS(url, subject string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("socketd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSBus(nc, subject), nil
}

func NewNATSBus(nc *nats.Conn, subject string) *NATSBus {
	return &NATSBus{nc: nc, subject: subject}
}

func (b *NATSBus) Name() string { return "nats" }

func (b *NATSBus) Publish(_ context.Context, env Envelope) error {
	data, err := env.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		metrics.ClusterErrors.WithLabelValues(b.Name(), "publish").Inc()
		return fmt.Errorf("nats publish: %w", err)
	}
	metrics.ClusterPublished.WithLabelValues(b.Name()).Inc()
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, h Handler) error {
	msgs := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(b.subject, msgs)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	log := logging.With("cluster")
	closed := make(chan struct{})
	b.nc.SetClosedHandler(func(*nats.Conn) { close(closed) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return ErrClosed
		case msg := <-msgs:
			var env Envelope
			if err := env.UnmarshalBinary(msg.Data); err != nil {
				metrics.ClusterErrors.WithLabelValues(b.Name(), "decode").Inc()
				log.Warn().Err(err).Str("bus", b.Name()).Msg("dropping undecodable cluster envelope")
				continue
			}
			h(env)
		}
	}
}

func (b *NATSBus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
