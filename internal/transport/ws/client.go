package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/metrics"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 16 * 1024
	sendBufSize    = 256
)

// Client represents a single WebSocket connection. Rooms are owned by the
// hub and only touched under its lock.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu         sync.RWMutex
	identity   *domain.Identity
	lastActive time.Time

	rooms map[string]struct{}

	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// flush asks the write pump to drain queued frames before closing.
	flush atomic.Bool
}

func NewClient(hub *Hub, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:         uuid.NewString(),
		hub:        hub,
		conn:       conn,
		limiter:    limiter,
		lastActive: time.Now(),
		rooms:      make(map[string]struct{}),
		send:       make(chan []byte, sendBufSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Identity returns the authenticated user, or nil for an anonymous
// connection.
func (c *Client) Identity() *domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) setIdentity(id *domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

func (c *Client) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// enqueue never blocks. A connection that cannot keep up is closed and
// goes through the normal disconnect path.
func (c *Client) enqueue(data []byte) {
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- data:
		metrics.WsDeliveries.Inc()
	default:
		metrics.WsDrops.Inc()
		log.Warn().Str("conn_id", c.id).Err(domain.ErrTransport).Msg("ws: send buffer full, closing slow consumer")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(c.cancel)
}

// closeGracefully lets the write pump flush what is queued first.
func (c *Client) closeGracefully() {
	c.flush.Store(true)
	c.close()
}

// ReadPump reads events off the socket and hands each one to handle, in
// order. It returns when the socket fails or is closed.
func (c *Client) ReadPump(handle func(*Client, *Event)) {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug().Str("conn_id", c.id).Msg("ws: client disconnected")
			} else if c.ctx.Err() == nil {
				log.Warn().Str("conn_id", c.id).Err(err).Msg("ws: read error")
			}
			return
		}

		c.touch()
		metrics.WsInboundEvents.WithLabelValues(event.Type).Inc()

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.WsRateLimited.Inc()
			c.sendError(EventTypeError, event.Type, "", CodeRateLimited, "too many events, slow down")
			continue
		}

		handle(c, &event)
	}
}

// WritePump writes queued frames to the socket and owns closing it.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				log.Warn().Str("conn_id", c.id).Err(err).Msg("ws: write error")
				c.close()
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Warn().Str("conn_id", c.id).Err(err).Msg("ws: ping error")
				c.close()
				c.conn.CloseNow()
				return
			}

		case <-c.ctx.Done():
			if c.flush.Load() {
				c.drain()
				c.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			c.conn.Close(websocket.StatusPolicyViolation, "connection closed")
			return
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, message)
}

func (c *Client) sendEvent(eventType string, payload any) {
	evt, err := NewEvent(eventType, nil, payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("ws: marshal error")
		return
	}
	c.hub.SendTo(c, evt)
}

func (c *Client) sendError(eventType, inbound, nonce, code, message string) {
	c.sendEvent(eventType, ErrorPayload{Code: code, Message: message, Event: inbound, Nonce: nonce})
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong, Timestamp: time.Now().Unix()})
	c.enqueue(data)
}
