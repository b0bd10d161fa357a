package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectPrefix = "syncfocus.docs"

	natsReconnectWait = 2 * time.Second
)

// NATSBus shares changes between server replicas over core NATS subjects
// named syncfocus.docs.<collection>.
type NATSBus struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

func ConnectNATS(url string, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "nats_bus").Logger()
	opts := []nats.Option{
		nats.Name("syncfocus-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSBus(nc, logger), nil
}

func NewNATSBus(nc *nats.Conn, logger zerolog.Logger) *NATSBus {
	return &NATSBus{nc: nc, logger: logger}
}

func Subject(collection string) string {
	return SubjectPrefix + "." + collection
}

func (b *NATSBus) Publish(_ context.Context, change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.nc.Publish(Subject(change.Collection), data); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(handler Handler) (func(), error) {
	sub, err := b.nc.Subscribe(SubjectPrefix+".>", func(msg *nats.Msg) {
		var change Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed change")
			return
		}
		handler(change)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			b.logger.Debug().Err(err).Msg("unsubscribe changes")
		}
	}, nil
}

func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
