package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

var _ repository.ChannelRepository = (*ChannelRepo)(nil)

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `SELECT id, workspace_id, name, type, created_by, created_at, archived_at
		FROM channels WHERE id = $1`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Type, &ch.CreatedBy, &ch.CreatedAt, &ch.ArchivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepo) AddMember(ctx context.Context, m *domain.ChannelMember) error {
	query := `INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, m.ChannelID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *ChannelRepo) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	query := `SELECT channel_id, user_id, role, joined_at
		FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
