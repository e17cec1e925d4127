package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeAuthLogin      = "auth.login"
	EventTypeAuthLogout     = "auth.logout"
	EventTypeChannelJoin    = "channel.join"
	EventTypeChannelLeave   = "channel.leave"
	EventTypeMessageSend    = "message.send"
	EventTypeMessageEdit    = "message.edit"
	EventTypeMessageDelete  = "message.delete"
	EventTypeTypingStart    = "typing.start"
	EventTypeTypingStop     = "typing.stop"
	EventTypeReactionAdd    = "reaction.add"
	EventTypeReactionRemove = "reaction.remove"
	EventTypeDMSend         = "dm.send"
	EventTypeDMRead         = "dm.read"
	EventTypePresenceUpdate = "presence.update"
	EventTypePing           = "ping"
)

// Event types - Server → Client
const (
	EventTypeAuthSuccess       = "auth.success"
	EventTypeAuthError         = "auth.error"
	EventTypeChannelJoined     = "channel.joined"
	EventTypeChannelLeft       = "channel.left"
	EventTypeChannelUserJoined = "channel.user_joined"
	EventTypeChannelUserLeft   = "channel.user_left"
	EventTypeMessageNew        = "message.new"
	EventTypeMessageUpdated    = "message.updated"
	EventTypeMessageDeleted    = "message.deleted"
	EventTypeMessageSent       = "message.sent"
	EventTypeMessageError      = "message.error"
	EventTypeTypingStarted     = "typing.started"
	EventTypeTypingStopped     = "typing.stopped"
	EventTypeReactionAdded     = "reaction.added"
	EventTypeReactionRemoved   = "reaction.removed"
	EventTypeDMNew             = "dm.new"
	EventTypeDMSent            = "dm.sent"
	EventTypePresenceOnline    = "presence.online"
	EventTypePresenceOffline   = "presence.offline"
	EventTypePresenceChanged   = "presence.changed"
	EventTypeServerShutdown    = "server.shutdown"
	EventTypePong              = "pong"
	EventTypeError             = "error"
)

// Error codes carried by auth.error, message.error and error events.
const (
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidParent          = "INVALID_PARENT"
	CodeAlreadyDeleted         = "ALREADY_DELETED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeValidation             = "VALIDATION"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	ChannelID *uuid.UUID      `json:"channel_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type AuthLoginPayload struct {
	Token string `json:"token"`
}

type MessageSendPayload struct {
	Content  string     `json:"content"`
	Type     string     `json:"type,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Nonce    string     `json:"nonce,omitempty"`
}

type MessageEditPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	Version   *int64    `json:"version,omitempty"`
	Nonce     string    `json:"nonce,omitempty"`
}

type MessageDeletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Nonce     string    `json:"nonce,omitempty"`
}

type ReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type DMSendPayload struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
	Nonce       string    `json:"nonce,omitempty"`
}

type DMReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type PresenceUpdatePayload struct {
	Status     domain.PresenceStatus `json:"status"`
	StatusText *string               `json:"status_text,omitempty"`
}

// --- Server → Client payloads ---

type AuthPayload struct {
	Authenticated bool             `json:"authenticated"`
	User          *domain.Identity `json:"user,omitempty"`
	ConnectionID  string           `json:"connection_id"`
}

type ChannelJoinedPayload struct {
	ChannelID uuid.UUID         `json:"channel_id"`
	Members   []domain.Identity `json:"members"`
}

type ChannelUserPayload struct {
	ChannelID uuid.UUID       `json:"channel_id"`
	User      domain.Identity `json:"user"`
}

type MessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

// MessageAckPayload answers the originating connection only.
type MessageAckPayload struct {
	Nonce   string          `json:"nonce,omitempty"`
	Action  string          `json:"action"`
	Message *domain.Message `json:"message"`
}

type TypingPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
}

type ReactionEventPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Count     int       `json:"count"`
}

type DMMessagePayload struct {
	domain.DMMessage
}

type DMAckPayload struct {
	Nonce   string            `json:"nonce,omitempty"`
	Message *domain.DMMessage `json:"message"`
}

type PresencePayload struct {
	UserID       uuid.UUID             `json:"user_id"`
	Status       domain.PresenceStatus `json:"status"`
	StatusText   *string               `json:"status_text,omitempty"`
	LastActiveAt time.Time             `json:"last_active_at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Event is the inbound event type that failed.
	Event string `json:"event,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, channelID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		ChannelID: channelID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

const (
	channelRoomPrefix = "channel:"
	userRoomPrefix    = "user:"
)

// ChannelRoom and UserRoom name the two kinds of rooms.
func ChannelRoom(channelID uuid.UUID) string {
	return channelRoomPrefix + channelID.String()
}

func UserRoom(userID uuid.UUID) string {
	return userRoomPrefix + userID.String()
}
