package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) IsValid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// Presence is the durable per-user presence record. Status is offline
// exactly when Connections is zero.
type Presence struct {
	UserID       uuid.UUID      `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	StatusText   *string        `json:"status_text,omitempty"`
	LastActiveAt time.Time      `json:"last_active_at"`
	Connections  int            `json:"-"`
}
