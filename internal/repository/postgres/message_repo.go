package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

const messageColumns = `m.id, m.channel_id, m.sender_id, m.content, m.type, m.parent_id,
	m.is_edited, m.is_deleted, m.version, m.created_at, m.updated_at, m.deleted_at,
	u.username, u.display_name`

type MessageRepo struct {
	pool *pgxpool.Pool
}

var _ repository.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, content, type, parent_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.Type, msg.ParentID, msg.Version, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByChannel returns messages in chronological order. Soft-deleted rows
// are kept so thread replies still resolve their parent.
func (r *MessageRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = fmt.Sprintf(`SELECT %s
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.channel_id = $1
				AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)
			ORDER BY m.created_at DESC
			LIMIT %d`, messageColumns, limit)
		args = []any{channelID, *before}
	} else {
		query = fmt.Sprintf(`SELECT %s
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.channel_id = $1
			ORDER BY m.created_at DESC
			LIMIT %d`, messageColumns, limit)
		args = []any{channelID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

func (r *MessageRepo) UpdateIfVersion(ctx context.Context, id uuid.UUID, expectedVersion int64, content string, at time.Time) error {
	query := `
		UPDATE messages
		SET content = $1, is_edited = TRUE, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4 AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, query, content, at, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id uuid.UUID, placeholder string, at time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET is_deleted = TRUE, content = $1, deleted_at = $2, updated_at = $2
		WHERE id = $3 AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, query, placeholder, at, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.Type, &msg.ParentID,
		&msg.IsEdited, &msg.IsDeleted, &msg.Version, &msg.CreatedAt, &msg.UpdatedAt, &msg.DeletedAt,
		&msg.SenderUsername, &msg.SenderDisplayName,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
