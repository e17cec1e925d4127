package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

var (
	ErrChannelNotFound  = fmt.Errorf("channel %w", domain.ErrNotFound)
	ErrChannelArchived  = fmt.Errorf("channel is archived: %w", domain.ErrForbidden)
	ErrNotMember        = fmt.Errorf("user is not a member of this workspace: %w", domain.ErrForbidden)
	ErrNotChannelMember = fmt.Errorf("user is not a member of this channel: %w", domain.ErrForbidden)
)

// ChannelService is the membership authority used to gate room joins,
// posting and moderation.
type ChannelService struct {
	channelRepo   repository.ChannelRepository
	workspaceRepo repository.WorkspaceRepository
}

func NewChannelService(channelRepo repository.ChannelRepository, workspaceRepo repository.WorkspaceRepository) *ChannelService {
	return &ChannelService{
		channelRepo:   channelRepo,
		workspaceRepo: workspaceRepo,
	}
}

func (s *ChannelService) IsChannelMember(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	return cm != nil, nil
}

// ChannelRole returns the user's role in the channel, or "" if the user
// holds no membership row.
func (s *ChannelService) ChannelRole(ctx context.Context, userID, channelID uuid.UUID) (string, error) {
	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return "", err
	}
	if cm == nil {
		return "", nil
	}
	return cm.Role, nil
}

// CheckAccess allows reads. Public channels only need workspace
// membership, private channels need a channel membership row.
func (s *ChannelService) CheckAccess(ctx context.Context, userID, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if ch.IsPublic() {
		member, err := s.workspaceRepo.GetMember(ctx, ch.WorkspaceID, userID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, ErrNotMember
		}
		return ch, nil
	}

	ok, err := s.IsChannelMember(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotChannelMember
	}
	return ch, nil
}

// AuthorizeJoin gates joining a channel room and posting to it. Workspace
// members joining a public channel for the first time are provisioned a
// membership row.
func (s *ChannelService) AuthorizeJoin(ctx context.Context, userID, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.CheckAccess(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	if ch.ArchivedAt != nil {
		return nil, ErrChannelArchived
	}
	if !ch.IsPublic() {
		return ch, nil
	}

	err = s.channelRepo.AddMember(ctx, &domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      domain.RoleMember,
		JoinedAt:  time.Now(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("adding channel member: %w", err)
	}
	return ch, nil
}

func (s *ChannelService) getChannel(ctx context.Context, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}
