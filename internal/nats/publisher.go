package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/config"
)

// Publisher delivers events to NATS. In JetStream mode every publish
// blocks for a PubAck with a bounded wait; in core mode a publish is
// followed by a bounded flush, which confirms the broker received the
// bytes but is the closest core NATS gets to an acknowledgement.
type Publisher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext // nil in core mode
	prefix     string
	ackTimeout time.Duration
	logger     *logrus.Logger
}

func NewPublisher(cfg config.NATSConfig, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", cfg.URL)

	p := &Publisher{
		conn:       conn,
		prefix:     cfg.SubjectPrefix,
		ackTimeout: cfg.AckTimeout,
		logger:     logger,
	}

	if cfg.JetStream {
		// MaxWait bounds how long a publish waits for its PubAck.
		js, err := conn.JetStream(nats.MaxWait(cfg.AckTimeout))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}
		if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix); err != nil {
			conn.Close()
			return nil, err
		}
		p.js = js
		logger.Infof("JetStream publishing enabled (stream %s, ack timeout %s)", cfg.Stream, cfg.AckTimeout)
	}

	return p, nil
}

func ensureStream(js nats.JetStreamContext, stream, prefix string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", stream, err)
	}
	return nil
}

// Publish serializes the payload as JSON and delivers it to
// prefix.topic. The connection serializes concurrent publishes from
// the pollers; no extra locking here.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.prefix + "." + topic
	if p.js != nil {
		if _, err := p.js.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
	} else {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		if err := p.conn.FlushTimeout(p.ackTimeout); err != nil {
			return fmt.Errorf("failed to flush publish to %s: %w", subject, err)
		}
	}

	p.logger.Debugf("Published event to %s", subject)
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
