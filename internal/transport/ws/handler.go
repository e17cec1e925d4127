package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/service"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

type GatewayConfig struct {
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
	// OpTimeout bounds one inbound event, CleanupTimeout bounds disconnect
	// cleanup.
	OpTimeout      time.Duration
	CleanupTimeout time.Duration
}

type Services struct {
	Auth     *service.AuthService
	Channels *service.ChannelService
	Presence *service.PresenceService
	Typing   *service.TypingService
	Messages *service.MessageService
	DMs      *service.DMService
}

// Gateway upgrades HTTP requests to WebSocket connections and routes each
// connection's inbound events, one at a time, to the services.
type Gateway struct {
	hub *Hub
	svc Services
	cfg GatewayConfig

	live sync.WaitGroup
}

func NewGateway(hub *Hub, svc Services, cfg GatewayConfig) *Gateway {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	return &Gateway{hub: hub, svc: svc, cfg: cfg}
}

// ServeWS upgrades to WebSocket. A ?token=xxx query param authenticates at
// upgrade time; without it the connection starts anonymous and may send
// auth.login later.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	var identity *domain.Identity
	if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
		id, err := g.svc.Auth.Validate(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		identity = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.cfg.AllowedOrigins,
		InsecureSkipVerify: len(g.cfg.AllowedOrigins) == 0,
	})
	if err != nil {
		log.Warn().Err(err).Msg("ws: accept error")
		return
	}

	g.live.Add(1)
	defer g.live.Done()

	client := NewClient(g.hub, conn, rate.NewLimiter(rate.Limit(g.cfg.RateLimit), g.cfg.RateBurst))
	g.hub.Register(client)
	go client.WritePump()

	if identity != nil {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.OpTimeout)
		g.login(ctx, client, *identity)
		cancel()
	}

	client.ReadPump(g.handle)
	g.disconnect(client)
}

// Shutdown tells every connection the server is going away, closes them
// after their queues flush, and waits for cleanup to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	evt, err := NewEvent(EventTypeServerShutdown, nil, map[string]string{"reason": "server shutting down"})
	if err != nil {
		return err
	}
	g.hub.BroadcastLocal(evt)
	for _, c := range g.hub.Clients() {
		c.closeGracefully()
	}

	done := make(chan struct{})
	go func() {
		g.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// disconnect runs for every connection however it ended. Cleanup uses its
// own context so an abrupt close still clears typing and presence.
func (g *Gateway) disconnect(c *Client) {
	rooms := g.hub.ChannelRooms(c)
	id := g.hub.Unregister(c)
	if id == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.CleanupTimeout)
	defer cancel()

	g.svc.Typing.StopAllForUser(id.UserID)
	if err := g.svc.Presence.OnDisconnect(ctx, id.UserID, c.id); err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Str("user_id", id.UserID.String()).Msg("ws: presence cleanup failed")
	}
	g.announceLeft(ctx, c, *id, rooms)
}

func (g *Gateway) handle(c *Client, ev *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.OpTimeout)
	defer cancel()

	switch ev.Type {
	case EventTypePing:
		c.sendPong()
		return
	case EventTypeAuthLogin:
		g.handleLogin(ctx, c, ev)
		return
	}

	id := c.Identity()
	if id == nil {
		g.replyError(c, ev.Type, "", domain.ErrUnauthenticated)
		return
	}

	switch ev.Type {
	case EventTypeAuthLogout:
		g.logout(ctx, c)
		c.sendEvent(EventTypeAuthSuccess, AuthPayload{Authenticated: false, ConnectionID: c.id})
	case EventTypeChannelJoin:
		g.handleJoin(ctx, c, *id, ev)
	case EventTypeChannelLeave:
		g.handleLeave(ctx, c, *id, ev)
	case EventTypeMessageSend:
		g.handleMessageSend(ctx, c, *id, ev)
	case EventTypeMessageEdit:
		g.handleMessageEdit(ctx, c, *id, ev)
	case EventTypeMessageDelete:
		g.handleMessageDelete(ctx, c, *id, ev)
	case EventTypeTypingStart, EventTypeTypingStop:
		g.handleTyping(c, *id, ev)
	case EventTypeReactionAdd, EventTypeReactionRemove:
		g.handleReaction(ctx, c, *id, ev)
	case EventTypeDMSend:
		g.handleDMSend(ctx, c, *id, ev)
	case EventTypeDMRead:
		g.handleDMRead(ctx, c, *id, ev)
	case EventTypePresenceUpdate:
		g.handlePresenceUpdate(ctx, c, *id, ev)
	default:
		g.replyError(c, ev.Type, "", fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, ev.Type))
	}
}

// --- auth ---

func (g *Gateway) handleLogin(ctx context.Context, c *Client, ev *Event) {
	var p AuthLoginPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	id, err := g.svc.Auth.Validate(ctx, p.Token)
	if err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}
	g.login(ctx, c, *id)
}

func (g *Gateway) login(ctx context.Context, c *Client, id domain.Identity) {
	prev := c.Identity()
	sameUser := prev != nil && prev.UserID == id.UserID
	if prev != nil && !sameUser {
		g.logout(ctx, c)
	}

	g.hub.AttachUser(c, id)
	if !sameUser {
		if err := g.svc.Presence.OnConnect(ctx, id.UserID, c.id); err != nil {
			log.Error().Err(err).Str("conn_id", c.id).Str("user_id", id.UserID.String()).Msg("ws: presence connect failed")
		}
	}

	log.Debug().Str("conn_id", c.id).Str("user_id", id.UserID.String()).Msg("ws: authenticated")
	c.sendEvent(EventTypeAuthSuccess, AuthPayload{Authenticated: true, User: &id, ConnectionID: c.id})
}

// logout detaches the user but keeps the connection open as anonymous.
func (g *Gateway) logout(ctx context.Context, c *Client) {
	id := c.Identity()
	if id == nil {
		return
	}

	rooms := g.hub.ChannelRooms(c)
	for _, room := range rooms {
		g.hub.Leave(c, room)
	}
	g.hub.DetachUser(c)

	g.svc.Typing.StopAllForUser(id.UserID)
	if err := g.svc.Presence.OnDisconnect(ctx, id.UserID, c.id); err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Str("user_id", id.UserID.String()).Msg("ws: presence disconnect failed")
	}
	g.announceLeft(ctx, c, *id, rooms)
}

// --- channels ---

func (g *Gateway) handleJoin(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	channelID, err := requireChannel(ev)
	if err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	if _, err := g.svc.Channels.AuthorizeJoin(ctx, id.UserID, channelID); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	room := ChannelRoom(channelID)
	wasPresent := g.hub.UserInRoom(room, id.UserID)
	g.hub.Join(c, room)

	c.sendEvent(EventTypeChannelJoined, ChannelJoinedPayload{ChannelID: channelID, Members: g.hub.MembersOf(room)})

	if !wasPresent {
		g.broadcast(ctx, room, EventTypeChannelUserJoined, &channelID, ChannelUserPayload{ChannelID: channelID, User: id}, c.id)
	}
}

func (g *Gateway) handleLeave(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	channelID, err := requireChannel(ev)
	if err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	room := ChannelRoom(channelID)
	if !g.hub.InRoom(c, room) {
		g.replyError(c, ev.Type, "", fmt.Errorf("not in this channel: %w", domain.ErrForbidden))
		return
	}
	g.hub.Leave(c, room)
	g.svc.Typing.Stop(channelID, id, c.id)

	c.sendEvent(EventTypeChannelLeft, ChannelUserPayload{ChannelID: channelID, User: id})
	g.announceLeft(ctx, c, id, []string{room})
}

// announceLeft tells each room the user left, unless another of the
// user's connections is still in it.
func (g *Gateway) announceLeft(ctx context.Context, c *Client, id domain.Identity, rooms []string) {
	for _, room := range rooms {
		if g.hub.UserInRoom(room, id.UserID) {
			continue
		}
		channelID, err := uuid.Parse(strings.TrimPrefix(room, channelRoomPrefix))
		if err != nil {
			continue
		}
		g.broadcast(ctx, room, EventTypeChannelUserLeft, &channelID, ChannelUserPayload{ChannelID: channelID, User: id}, c.id)
	}
}

// --- messages ---

func (g *Gateway) handleMessageSend(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p MessageSendPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}
	channelID, err := requireChannel(ev)
	if err != nil {
		g.replyError(c, ev.Type, p.Nonce, err)
		return
	}

	msg, err := g.svc.Messages.Create(ctx, service.CreateMessageInput{
		ChannelID: channelID,
		Author:    id,
		Content:   p.Content,
		Type:      p.Type,
		ParentID:  p.ParentID,
		ConnID:    c.id,
	})
	if err != nil {
		g.replyError(c, ev.Type, p.Nonce, err)
		return
	}
	c.sendEvent(EventTypeMessageSent, MessageAckPayload{Nonce: p.Nonce, Action: "send", Message: msg})
}

func (g *Gateway) handleMessageEdit(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p MessageEditPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	msg, err := g.svc.Messages.Edit(ctx, service.EditMessageInput{
		MessageID: p.MessageID,
		EditorID:  id.UserID,
		Content:   p.Content,
		Version:   p.Version,
	})
	if err != nil {
		g.replyError(c, ev.Type, p.Nonce, err)
		return
	}
	c.sendEvent(EventTypeMessageSent, MessageAckPayload{Nonce: p.Nonce, Action: "edit", Message: msg})
}

func (g *Gateway) handleMessageDelete(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p MessageDeletePayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	msg, err := g.svc.Messages.Delete(ctx, p.MessageID, id.UserID)
	if err != nil {
		g.replyError(c, ev.Type, p.Nonce, err)
		return
	}
	c.sendEvent(EventTypeMessageSent, MessageAckPayload{Nonce: p.Nonce, Action: "delete", Message: msg})
}

func (g *Gateway) handleTyping(c *Client, id domain.Identity, ev *Event) {
	channelID, err := requireChannel(ev)
	if err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}
	if !g.hub.InRoom(c, ChannelRoom(channelID)) {
		g.replyError(c, ev.Type, "", fmt.Errorf("join the channel first: %w", domain.ErrForbidden))
		return
	}

	if ev.Type == EventTypeTypingStart {
		g.svc.Typing.Start(channelID, id, c.id)
		return
	}
	g.svc.Typing.Stop(channelID, id, c.id)
}

func (g *Gateway) handleReaction(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p ReactionPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	var err error
	if ev.Type == EventTypeReactionAdd {
		_, err = g.svc.Messages.AddReaction(ctx, p.MessageID, id.UserID, p.Emoji)
	} else {
		_, err = g.svc.Messages.RemoveReaction(ctx, p.MessageID, id.UserID, p.Emoji)
	}
	if err != nil {
		g.replyError(c, ev.Type, "", err)
	}
}

// --- direct messages ---

func (g *Gateway) handleDMSend(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p DMSendPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}

	msg, err := g.svc.DMs.SendDirectMessage(ctx, service.SendDMInput{
		Sender:      id,
		RecipientID: p.RecipientID,
		Content:     p.Content,
	})
	if err != nil {
		g.replyError(c, ev.Type, p.Nonce, err)
		return
	}
	c.sendEvent(EventTypeDMSent, DMAckPayload{Nonce: p.Nonce, Message: msg})
}

func (g *Gateway) handleDMRead(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p DMReadPayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}
	if _, err := g.svc.DMs.MarkRead(ctx, id.UserID, p.ConversationID, p.MessageID); err != nil {
		g.replyError(c, ev.Type, "", err)
	}
}

func (g *Gateway) handlePresenceUpdate(ctx context.Context, c *Client, id domain.Identity, ev *Event) {
	var p PresenceUpdatePayload
	if err := decode(ev, &p); err != nil {
		g.replyError(c, ev.Type, "", err)
		return
	}
	if _, err := g.svc.Presence.SetStatus(ctx, id.UserID, p.Status, p.StatusText); err != nil {
		g.replyError(c, ev.Type, "", err)
	}
}

// --- helpers ---

func (g *Gateway) broadcast(ctx context.Context, room, eventType string, channelID *uuid.UUID, payload any, excludeConn string) {
	evt, err := NewEvent(eventType, channelID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("ws: marshal error")
		return
	}
	if err := g.hub.Broadcast(ctx, room, evt, excludeConn); err != nil {
		log.Warn().Err(err).Str("room", room).Str("type", eventType).Msg("ws: broadcast failed")
	}
}

// replyError reports a failure to the originating connection only.
func (g *Gateway) replyError(c *Client, inbound, nonce string, err error) {
	code, message := errorCode(err)
	if code == CodeInternal {
		log.Error().Err(err).Str("conn_id", c.id).Str("event", inbound).Msg("ws: event failed")
	}
	c.sendError(errorEventFor(inbound), inbound, nonce, code, message)
}

func errorEventFor(inbound string) string {
	switch {
	case strings.HasPrefix(inbound, "auth."):
		return EventTypeAuthError
	case strings.HasPrefix(inbound, "message."), strings.HasPrefix(inbound, "reaction."):
		return EventTypeMessageError
	}
	return EventTypeError
}

func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return CodeUnauthenticated, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidParent):
		return CodeInvalidParent, err.Error()
	case errors.Is(err, domain.ErrAlreadyDeleted):
		return CodeAlreadyDeleted, err.Error()
	case errors.Is(err, domain.ErrConcurrentModification):
		return CodeConcurrentModification, err.Error()
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation, err.Error()
	}
	return CodeInternal, "internal error"
}

func decode(ev *Event, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrValidation)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload", domain.ErrValidation, ev.Type)
	}
	return nil
}

func requireChannel(ev *Event) (uuid.UUID, error) {
	if ev.ChannelID == nil || *ev.ChannelID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: channel_id required for %s", domain.ErrValidation, ev.Type)
	}
	return *ev.ChannelID, nil
}
