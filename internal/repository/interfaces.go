package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

var (
	// ErrDuplicate is returned by unique-constraint-enforced inserts when
	// the row already exists.
	ErrDuplicate = errors.New("duplicate row")
	// ErrVersionConflict is returned by UpdateIfVersion when the stored
	// version no longer matches the expected one.
	ErrVersionConflict = errors.New("version conflict")
)

// Getters return (nil, nil) when the row does not exist.

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type WorkspaceRepository interface {
	GetMember(ctx context.Context, workspaceID, userID uuid.UUID) (*domain.WorkspaceMember, error)
	// ListPeers returns every user sharing at least one workspace with userID,
	// excluding userID itself.
	ListPeers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type ChannelRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	// AddMember inserts the membership row, returning ErrDuplicate if it exists.
	AddMember(ctx context.Context, member *domain.ChannelMember) error
	GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error)
}

// PresenceRepository keeps the live connection set and the status in one
// record so the two cannot disagree, even across server instances.
type PresenceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error)
	// AddConnection records a live connection. When it is the user's first,
	// the status becomes online in the same atomic step (status text is
	// kept) and changed is true.
	AddConnection(ctx context.Context, userID uuid.UUID, connID string, at time.Time) (p *domain.Presence, changed bool, err error)
	// RemoveConnection drops a live connection. When it was the last, the
	// status becomes offline in the same atomic step and changed is true.
	RemoveConnection(ctx context.Context, userID uuid.UUID, connID string, at time.Time) (p *domain.Presence, changed bool, err error)
	// SetStatus writes status and text only while the live set is non-empty.
	// It returns (nil, nil) when the user has no live connection.
	SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, statusText *string, at time.Time) (*domain.Presence, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	ListByChannel(ctx context.Context, channelID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	// UpdateIfVersion writes new content only if the stored version equals
	// expectedVersion and the message is not deleted. On success the stored
	// version becomes expectedVersion+1.
	UpdateIfVersion(ctx context.Context, id uuid.UUID, expectedVersion int64, content string, at time.Time) error
	// SoftDelete marks the message deleted and replaces its content. It
	// returns false if the message was already deleted.
	SoftDelete(ctx context.Context, id uuid.UUID, placeholder string, at time.Time) (bool, error)
}

type ReactionRepository interface {
	// Add returns false when the (message, user, emoji) triple already exists.
	Add(ctx context.Context, r *domain.Reaction) (bool, error)
	// Remove returns false when there was nothing to remove.
	Remove(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
	Count(ctx context.Context, messageID uuid.UUID, emoji string) (int, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error)
}

type DMRepository interface {
	// CreateConversation returns ErrDuplicate when the canonical pair exists.
	CreateConversation(ctx context.Context, conv *domain.DMConversation) error
	GetConversationByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.DMConversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID) (*domain.DMConversation, error)
	CreateMessage(ctx context.Context, msg *domain.DMMessage) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*domain.DMMessage, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertReadState(ctx context.Context, state *domain.DMReadState) error
}
