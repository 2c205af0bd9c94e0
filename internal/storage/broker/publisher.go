// Package broker mirrors archive batches onto NATS subjects.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func Connect(url, prefix string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("zoom-dashboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	if prefix == "" {
		prefix = "zoom.archive"
	}
	return &Publisher{nc: nc, prefix: prefix}, nil
}

func (p *Publisher) Name() string { return "nats" }

// Subject is where lines of a stream are published.
func (p *Publisher) Subject(stream string) string {
	return p.prefix + "." + stream
}

// Publish sends one message per line and waits for the server to
// acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, stream string, lines [][]byte) error {
	subject := p.Subject(stream)
	for _, line := range lines {
		if err := p.nc.Publish(subject, line); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *Publisher) Close() error {
	return p.nc.Drain()
}
