package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/metrics"
	"github.com/unnita1235/ConnectNow-sub000/internal/pubsub"
)

// Hub is the connection registry and room fanout for one process. Room
// broadcasts go through the broker so every node, this one included,
// delivers them to its local members.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
	// rooms maps room id → connection id → client.
	rooms map[string]map[string]*Client

	broker pubsub.Broker
	node   string
}

func NewHub(broker pubsub.Broker, node string) (*Hub, error) {
	h := &Hub{
		conns:  make(map[string]*Client),
		rooms:  make(map[string]map[string]*Client),
		broker: broker,
		node:   node,
	}
	if err := broker.Subscribe(h.deliver); err != nil {
		return nil, fmt.Errorf("subscribing hub: %w", err)
	}
	return h, nil
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()

	metrics.WsConnections.Inc()
	log.Debug().Str("conn_id", c.id).Int("total", n).Msg("ws hub: connection registered")
}

// AttachUser binds an identity to the connection and joins the user's
// personal room. It returns the identity previously attached, if any.
func (h *Hub) AttachUser(c *Client, id domain.Identity) *domain.Identity {
	prev := h.DetachUser(c)
	c.setIdentity(&id)
	h.Join(c, UserRoom(id.UserID))
	return prev
}

// DetachUser clears the identity and leaves the personal room. Channel
// rooms are left to the caller.
func (h *Hub) DetachUser(c *Client) *domain.Identity {
	prev := c.Identity()
	if prev == nil {
		return nil
	}
	h.Leave(c, UserRoom(prev.UserID))
	c.setIdentity(nil)
	return prev
}

// Unregister removes the connection from every room and returns the user
// it belonged to, if any. Safe to call more than once.
func (h *Hub) Unregister(c *Client) *domain.Identity {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	if ok {
		delete(h.conns, c.id)
		for room := range c.rooms {
			h.leaveLocked(c, room)
		}
	}
	n := len(h.conns)
	h.mu.Unlock()

	c.close()
	if !ok {
		return nil
	}

	metrics.WsConnections.Dec()
	log.Debug().Str("conn_id", c.id).Int("total", n).Msg("ws hub: connection unregistered")
	return c.Identity()
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.id]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.id] = c
	c.rooms[room] = struct{}{}
	metrics.WsRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	metrics.WsRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// UserInRoom reports whether any local connection of the user is in room.
func (h *Hub) UserInRoom(room string, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[room] {
		if id := c.Identity(); id != nil && id.UserID == userID {
			return true
		}
	}
	return false
}

// ChannelRooms lists the channel rooms the connection is in.
func (h *Hub) ChannelRooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for room := range c.rooms {
		if strings.HasPrefix(room, channelRoomPrefix) {
			out = append(out, room)
		}
	}
	return out
}

// MembersOf returns the distinct authenticated users with a local
// connection in the room.
func (h *Hub) MembersOf(room string) []domain.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []domain.Identity{}
	seen := make(map[string]struct{})
	for _, c := range h.rooms[room] {
		id := c.Identity()
		if id == nil {
			continue
		}
		key := id.UserID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, *id)
	}
	return out
}

// Broadcast sends an event to every connection in the room except
// excludeConn. An empty room is not an error.
func (h *Hub) Broadcast(ctx context.Context, room string, event *Event, excludeConn string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = h.broker.Publish(ctx, pubsub.Message{
		Room:    room,
		Exclude: excludeConn,
		Data:    data,
		Origin:  h.node,
	})
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrTransport, room, err)
	}
	return nil
}

// SendTo delivers an event to one local connection.
func (h *Hub) SendTo(c *Client, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("ws hub: marshal error")
		return
	}
	c.enqueue(data)
}

// BroadcastLocal reaches every local connection. It is reserved for the
// administrative shutdown notice.
func (h *Hub) BroadcastLocal(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("ws hub: marshal error")
		return
	}
	for _, c := range h.Clients() {
		c.enqueue(data)
	}
}

func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// deliver is the broker handler. Messages for one room arrive in publish
// order and are queued per connection in that order.
func (h *Hub) deliver(msg pubsub.Message) {
	if msg.Origin != h.node {
		metrics.WsRemoteBroadcasts.Inc()
		log.Debug().Str("room", msg.Room).Str("origin", msg.Origin).Msg("ws hub: remote broadcast")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[msg.Room] {
		if id == msg.Exclude {
			continue
		}
		c.enqueue(msg.Data)
	}
}
