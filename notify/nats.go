package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/imrenagi/go-drive-upload/config"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATS publishes every event on <subject>.<token> so that observers outside
// this process can follow an upload.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(cfg config.NATSConfig, name string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: conn, subject: cfg.Subject}, nil
}

// Subject returns the subject events for token are published on.
func (n *NATS) Subject(token string) string {
	return n.subject + "." + token
}

func (n *NATS) Notify(_ context.Context, token, event string, payload any) error {
	b, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return err
	}
	return n.conn.Publish(n.Subject(token), b)
}

// Close flushes pending events and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
