package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/metrics"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
	"github.com/unnita1235/ConnectNow-sub000/pkg/validator"
)

var ErrNotConnected = fmt.Errorf("user has no live connection: %w", domain.ErrForbidden)

// PresenceService derives one status per user from the user's live
// connections. Every mutation for a user runs under that user's lock so
// connect and disconnect cannot interleave.
type PresenceService struct {
	presenceRepo  repository.PresenceRepository
	workspaceRepo repository.WorkspaceRepository
	notifier      Notifier
	locks         *keyedMutex
	now           func() time.Time
}

func NewPresenceService(presenceRepo repository.PresenceRepository, workspaceRepo repository.WorkspaceRepository) *PresenceService {
	return &PresenceService{
		presenceRepo:  presenceRepo,
		workspaceRepo: workspaceRepo,
		notifier:      nopNotifier{},
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
}

func (s *PresenceService) SetNotifier(n Notifier) {
	s.notifier = n
}

// OnConnect adds connID to the user's live set. The first connection
// moves the user to online; the store applies both in one step.
func (s *PresenceService) OnConnect(ctx context.Context, userID uuid.UUID, connID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	p, changed, err := s.presenceRepo.AddConnection(ctx, userID, connID, s.now())
	if err != nil {
		return fmt.Errorf("adding connection: %w", err)
	}
	if changed {
		s.announce(ctx, p, PresenceWentOnline)
	}
	return nil
}

// OnDisconnect removes connID from the live set. Only the last connection
// going away is externally visible.
func (s *PresenceService) OnDisconnect(ctx context.Context, userID uuid.UUID, connID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	p, changed, err := s.presenceRepo.RemoveConnection(ctx, userID, connID, s.now())
	if err != nil {
		return fmt.Errorf("removing connection: %w", err)
	}
	if changed {
		s.announce(ctx, p, PresenceWentOffline)
	}
	return nil
}

// SetStatus is an explicit user choice. It always persists and broadcasts
// but leaves the live set alone, so it needs at least one live connection.
func (s *PresenceService) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, statusText *string) (*domain.Presence, error) {
	if errs := validator.ValidateStatus(string(status), statusText); errs.HasErrors() {
		return nil, validationError(errs)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	p, err := s.presenceRepo.SetStatus(ctx, userID, status, statusText, s.now())
	if err != nil {
		return nil, fmt.Errorf("persisting presence: %w", err)
	}
	if p == nil {
		return nil, ErrNotConnected
	}

	s.announce(ctx, p, PresenceChanged)
	return p, nil
}

func (s *PresenceService) Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	p, err := s.presenceRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &domain.Presence{UserID: userID, Status: domain.PresenceOffline}, nil
	}
	return p, nil
}

// announce counts and broadcasts a transition that is already persisted.
// Callers hold the user's lock.
func (s *PresenceService) announce(ctx context.Context, p *domain.Presence, change PresenceChange) {
	metrics.PresenceTransitions.WithLabelValues(string(p.Status)).Inc()

	audience, err := s.workspaceRepo.ListPeers(ctx, p.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("presence audience lookup failed")
		audience = nil
	}
	if change == PresenceChanged {
		audience = append(audience, p.UserID)
	}

	s.notifier.NotifyPresence(audience, p, change)
}
