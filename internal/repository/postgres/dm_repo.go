package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

type DMRepo struct {
	pool *pgxpool.Pool
}

var _ repository.DMRepository = (*DMRepo)(nil)

func NewDMRepo(pool *pgxpool.Pool) *DMRepo {
	return &DMRepo{pool: pool}
}

// CreateConversation relies on the UNIQUE (user1_id, user2_id) constraint;
// a losing racer gets ErrDuplicate instead of a constraint error.
func (r *DMRepo) CreateConversation(ctx context.Context, conv *domain.DMConversation) error {
	query := `
		INSERT INTO dm_conversations (id, user1_id, user2_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user1_id, user2_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, conv.ID, conv.User1ID, conv.User2ID, conv.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *DMRepo) GetConversationByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.DMConversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM dm_conversations
		WHERE user1_id = $1 AND user2_id = $2`
	return r.scanConversation(ctx, query, user1ID, user2ID)
}

func (r *DMRepo) GetConversationByID(ctx context.Context, id uuid.UUID) (*domain.DMConversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM dm_conversations
		WHERE id = $1`
	return r.scanConversation(ctx, query, id)
}

func (r *DMRepo) CreateMessage(ctx context.Context, msg *domain.DMMessage) error {
	query := `
		INSERT INTO dm_messages (id, conversation_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt,
	)
	return err
}

func (r *DMRepo) GetMessageByID(ctx context.Context, id uuid.UUID) (*domain.DMMessage, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id,
			CASE WHEN c.user1_id = m.sender_id THEN c.user2_id ELSE c.user1_id END,
			m.content, m.created_at
		FROM dm_messages m
		JOIN dm_conversations c ON c.id = m.conversation_id
		WHERE m.id = $1`
	var msg domain.DMMessage
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID, &msg.Content, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *DMRepo) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dm_conversations SET last_message_at = $1
		WHERE id = $2 AND (last_message_at IS NULL OR last_message_at < $1)`, at, id)
	return err
}

func (r *DMRepo) UpsertReadState(ctx context.Context, s *domain.DMReadState) error {
	query := `
		INSERT INTO dm_read_states (conversation_id, user_id, last_read_message_id, read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
		SET last_read_message_id = EXCLUDED.last_read_message_id, read_at = EXCLUDED.read_at`
	_, err := r.pool.Exec(ctx, query, s.ConversationID, s.UserID, s.LastReadMessageID, s.ReadAt)
	return err
}

func (r *DMRepo) scanConversation(ctx context.Context, query string, args ...any) (*domain.DMConversation, error) {
	var conv domain.DMConversation
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
