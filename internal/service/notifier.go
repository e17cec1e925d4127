package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/pkg/validator"
)

// PresenceChange classifies a presence broadcast.
type PresenceChange string

const (
	PresenceWentOnline  PresenceChange = "online"
	PresenceWentOffline PresenceChange = "offline"
	PresenceChanged     PresenceChange = "changed"
)

// ReactionChange is the aggregate effect of one add or remove.
type ReactionChange struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Added     bool      `json:"-"`
	Count     int       `json:"count"`
}

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message)
	NotifyEditedMessage(msg *domain.Message)
	NotifyDeletedMessage(channelID, messageID uuid.UUID)
	NotifyReaction(change ReactionChange)
	// NotifyTyping skips excludeConn when it is non-empty.
	NotifyTyping(channelID uuid.UUID, who domain.Identity, typing bool, excludeConn string)
	// NotifyPresence delivers to the personal rooms of audience.
	NotifyPresence(audience []uuid.UUID, p *domain.Presence, change PresenceChange)
	NotifyNewDM(msg *domain.DMMessage)
	NotifyDMRead(recipientID uuid.UUID, state *domain.DMReadState)
}

type nopNotifier struct{}

func (nopNotifier) NotifyNewMessage(*domain.Message) {}
func (nopNotifier) NotifyEditedMessage(*domain.Message) {}
func (nopNotifier) NotifyDeletedMessage(uuid.UUID, uuid.UUID) {}
func (nopNotifier) NotifyReaction(ReactionChange) {}
func (nopNotifier) NotifyTyping(uuid.UUID, domain.Identity, bool, string) {}
func (nopNotifier) NotifyPresence([]uuid.UUID, *domain.Presence, PresenceChange) {}
func (nopNotifier) NotifyNewDM(*domain.DMMessage) {}
func (nopNotifier) NotifyDMRead(uuid.UUID, *domain.DMReadState) {}

func validationError(errs validator.ValidationErrors) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, errs.Error())
}
