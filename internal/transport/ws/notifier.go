package ws

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/service"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
// Publish failures are transport errors: logged and dropped.
type HubNotifier struct {
	hub *Hub
}

var _ service.Notifier = (*HubNotifier)(nil)

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	n.toRoom(ChannelRoom(msg.ChannelID), EventTypeMessageNew, &msg.ChannelID, MessagePayload{Message: *msg}, "")
}

func (n *HubNotifier) NotifyEditedMessage(msg *domain.Message) {
	n.toRoom(ChannelRoom(msg.ChannelID), EventTypeMessageUpdated, &msg.ChannelID, MessagePayload{Message: *msg}, "")
}

func (n *HubNotifier) NotifyDeletedMessage(channelID, messageID uuid.UUID) {
	n.toRoom(ChannelRoom(channelID), EventTypeMessageDeleted, &channelID, MessageDeletedPayload{ID: messageID}, "")
}

func (n *HubNotifier) NotifyReaction(change service.ReactionChange) {
	eventType := EventTypeReactionRemoved
	if change.Added {
		eventType = EventTypeReactionAdded
	}
	n.toRoom(ChannelRoom(change.ChannelID), eventType, &change.ChannelID, ReactionEventPayload{
		MessageID: change.MessageID,
		UserID:    change.UserID,
		Emoji:     change.Emoji,
		Count:     change.Count,
	}, "")
}

func (n *HubNotifier) NotifyTyping(channelID uuid.UUID, who domain.Identity, typing bool, excludeConn string) {
	eventType := EventTypeTypingStopped
	if typing {
		eventType = EventTypeTypingStarted
	}
	n.toRoom(ChannelRoom(channelID), eventType, &channelID, TypingPayload{
		UserID:      who.UserID,
		Username:    who.Username,
		DisplayName: who.DisplayName,
	}, excludeConn)
}

func (n *HubNotifier) NotifyPresence(audience []uuid.UUID, p *domain.Presence, change service.PresenceChange) {
	var eventType string
	switch change {
	case service.PresenceWentOnline:
		eventType = EventTypePresenceOnline
	case service.PresenceWentOffline:
		eventType = EventTypePresenceOffline
	default:
		eventType = EventTypePresenceChanged
	}

	payload := PresencePayload{
		UserID:       p.UserID,
		Status:       p.Status,
		StatusText:   p.StatusText,
		LastActiveAt: p.LastActiveAt,
	}
	for _, userID := range audience {
		n.toRoom(UserRoom(userID), eventType, nil, payload, "")
	}
}

func (n *HubNotifier) NotifyNewDM(msg *domain.DMMessage) {
	n.toRoom(UserRoom(msg.RecipientID), EventTypeDMNew, nil, DMMessagePayload{DMMessage: *msg}, "")
}

func (n *HubNotifier) NotifyDMRead(recipientID uuid.UUID, state *domain.DMReadState) {
	n.toRoom(UserRoom(recipientID), EventTypeDMRead, nil, state, "")
}

func (n *HubNotifier) toRoom(room, eventType string, channelID *uuid.UUID, payload any, excludeConn string) {
	evt, err := NewEvent(eventType, channelID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("ws notifier: marshal error")
		return
	}
	if err := n.hub.Broadcast(context.Background(), room, evt, excludeConn); err != nil {
		log.Warn().Err(err).Str("room", room).Str("type", eventType).Msg("ws notifier: broadcast failed")
	}
}
