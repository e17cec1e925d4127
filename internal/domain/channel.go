package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChannelTypePublic  = "public"
	ChannelTypePrivate = "private"
)

// Channel member roles. Owners and moderators may delete any message.
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

type Channel struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

func (c *Channel) IsPublic() bool {
	return c.Type == ChannelTypePublic
}

type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// CanModerate reports whether the role may delete other members' messages.
func CanModerate(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleModerator:
		return true
	}
	return false
}
