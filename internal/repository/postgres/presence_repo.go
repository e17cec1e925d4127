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

type PresenceRepo struct {
	pool *pgxpool.Pool
}

var _ repository.PresenceRepository = (*PresenceRepo)(nil)

func NewPresenceRepo(pool *pgxpool.Pool) *PresenceRepo {
	return &PresenceRepo{pool: pool}
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PresenceRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	return getPresence(ctx, r.pool, userID)
}

func getPresence(ctx context.Context, q rowQuerier, userID uuid.UUID) (*domain.Presence, error) {
	query := `
		SELECT p.user_id, p.status, p.status_text, p.last_active_at,
			(SELECT COUNT(*) FROM presence_connections c WHERE c.user_id = p.user_id)
		FROM presence p WHERE p.user_id = $1`
	var p domain.Presence
	err := q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Status, &p.StatusText, &p.LastActiveAt, &p.Connections)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddConnection inserts the connection and, on the first one, flips the
// status to online inside the same transaction that holds the row lock.
func (r *PresenceRepo) AddConnection(ctx context.Context, userID uuid.UUID, connID string, at time.Time) (*domain.Presence, bool, error) {
	var (
		p       *domain.Presence
		changed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPresence(ctx, tx, userID, at); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO presence_connections (user_id, connection_id, connected_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, connection_id) DO NOTHING`,
			userID, connID, at)
		if err != nil {
			return err
		}

		n, err := countConnections(ctx, tx, userID)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1 && n == 1
		if changed {
			if err := setStatusTx(ctx, tx, userID, domain.PresenceOnline, at); err != nil {
				return err
			}
		}

		p, err = getPresence(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// RemoveConnection deletes the connection and, on the last one, flips the
// status to offline inside the same transaction.
func (r *PresenceRepo) RemoveConnection(ctx context.Context, userID uuid.UUID, connID string, at time.Time) (*domain.Presence, bool, error) {
	var (
		p       *domain.Presence
		changed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPresence(ctx, tx, userID, at); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM presence_connections WHERE user_id = $1 AND connection_id = $2`, userID, connID)
		if err != nil {
			return err
		}

		n, err := countConnections(ctx, tx, userID)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1 && n == 0
		if changed {
			if err := setStatusTx(ctx, tx, userID, domain.PresenceOffline, at); err != nil {
				return err
			}
		}

		p, err = getPresence(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

func (r *PresenceRepo) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, statusText *string, at time.Time) (*domain.Presence, error) {
	var p *domain.Presence
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPresence(ctx, tx, userID, at); err != nil {
			return err
		}
		n, err := countConnections(ctx, tx, userID)
		if err != nil || n == 0 {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE presence SET status = $2, status_text = $3, last_active_at = $4
			WHERE user_id = $1`,
			userID, status, statusText, at)
		if err != nil {
			return err
		}

		p, err = getPresence(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func countConnections(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM presence_connections WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// setStatusTx changes only the status; the status text survives offline.
func setStatusTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, status domain.PresenceStatus, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE presence SET status = $2, last_active_at = $3 WHERE user_id = $1`, userID, status, at)
	return err
}

// lockPresence creates the presence row lazily and holds a row lock on it
// until the transaction ends. Every live-set change and status write for
// the user happens under this lock, across server instances.
func lockPresence(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO presence (user_id, status, last_active_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, domain.PresenceOffline, at)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT 1 FROM presence WHERE user_id = $1 FOR UPDATE`, userID)
	return err
}
