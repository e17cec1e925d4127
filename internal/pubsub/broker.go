package pubsub

import (
	"context"
	"encoding/json"
)

// Message is one room broadcast as it travels between nodes. Data is the
// already-encoded outbound event so every node writes identical bytes.
type Message struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Data    json.RawMessage `json:"data"`
	// Origin names the publishing node.
	Origin string `json:"origin"`
}

// Handler receives every message published on any room. Handlers are called
// from a single goroutine per broker, in publish order.
type Handler func(Message)

// Broker fans room broadcasts out to every node, including the publisher.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(h Handler) error
	Close() error
}
