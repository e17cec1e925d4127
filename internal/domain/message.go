package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// DeletedPlaceholder replaces the content of soft-deleted messages.
const DeletedPlaceholder = "This message was deleted."

type Message struct {
	ID        uuid.UUID  `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	IsEdited  bool       `json:"is_edited"`
	IsDeleted bool       `json:"is_deleted"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	// Joined fields
	SenderUsername    string `json:"sender_username,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
}

// Reaction is unique per (message, user, emoji).
type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup is the per-emoji aggregate shown to a viewer.
type ReactionGroup struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	Users   []uuid.UUID `json:"users"`
	Reacted bool        `json:"reacted"`
}
