package domain

import (
	"time"

	"github.com/google/uuid"
)

// DMConversation is keyed by the canonical pair: User1ID is always the
// smaller of the two participant ids.
type DMConversation struct {
	ID            uuid.UUID  `json:"id"`
	User1ID       uuid.UUID  `json:"user1_id"`
	User2ID       uuid.UUID  `json:"user2_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (c *DMConversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c *DMConversation) Other(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type DMMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type DMReadState struct {
	ConversationID    uuid.UUID `json:"conversation_id"`
	UserID            uuid.UUID `json:"user_id"`
	LastReadMessageID uuid.UUID `json:"last_read_message_id"`
	ReadAt            time.Time `json:"read_at"`
}
