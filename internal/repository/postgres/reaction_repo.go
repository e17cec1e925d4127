package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

type ReactionRepo struct {
	pool *pgxpool.Pool
}

var _ repository.ReactionRepository = (*ReactionRepo)(nil)

func NewReactionRepo(pool *pgxpool.Pool) *ReactionRepo {
	return &ReactionRepo{pool: pool}
}

func (r *ReactionRepo) Add(ctx context.Context, re *domain.Reaction) (bool, error) {
	query := `
		INSERT INTO reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, re.MessageID, re.UserID, re.Emoji, re.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReactionRepo) Remove(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReactionRepo) Count(ctx context.Context, messageID uuid.UUID, emoji string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reactions WHERE message_id = $1 AND emoji = $2`,
		messageID, emoji).Scan(&n)
	return n, err
}

func (r *ReactionRepo) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	query := `SELECT message_id, user_id, emoji, created_at
		FROM reactions WHERE message_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []domain.Reaction
	for rows.Next() {
		var re domain.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}
