package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATS publishes each room on its own subject under prefix. Room ids use
// ':' as separator, which is mapped to the NATS token separator '.'.
type NATS struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
}

func NewNATS(url, prefix, name string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, prefix: prefix}, nil
}

func (n *NATS) subject(room string) string {
	return n.prefix + "." + strings.ReplaceAll(room, ":", ".")
}

func (n *NATS) Publish(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject(msg.Room), data)
}

func (n *NATS) Subscribe(h Handler) error {
	sub, err := n.nc.Subscribe(n.prefix+".>", func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("failed to decode broker message")
			return
		}
		h(msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe nats: %w", err)
	}
	n.sub = sub
	return nil
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}
