package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/metrics"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
	"github.com/unnita1235/ConnectNow-sub000/pkg/validator"
)

var (
	ErrMessageNotFound = fmt.Errorf("message %w", domain.ErrNotFound)
	ErrNotMessageOwner = fmt.Errorf("only the message sender can perform this action: %w", domain.ErrForbidden)
	ErrCannotDelete    = fmt.Errorf("only the sender or a channel moderator can delete: %w", domain.ErrForbidden)
	ErrParentInvalid   = fmt.Errorf("parent must exist in the same channel and not be deleted: %w", domain.ErrInvalidParent)
	ErrMessageDeleted  = fmt.Errorf("message %w", domain.ErrAlreadyDeleted)
	ErrEditConflict    = fmt.Errorf("message was modified, re-fetch and retry: %w", domain.ErrConcurrentModification)
)

type MessageService struct {
	messageRepo  repository.MessageRepository
	reactionRepo repository.ReactionRepository
	channels     *ChannelService
	typing       *TypingService
	notifier     Notifier
	now          func() time.Time
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	reactionRepo repository.ReactionRepository,
	channels *ChannelService,
	typing *TypingService,
) *MessageService {
	return &MessageService{
		messageRepo:  messageRepo,
		reactionRepo: reactionRepo,
		channels:     channels,
		typing:       typing,
		notifier:     nopNotifier{},
		now:          time.Now,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type CreateMessageInput struct {
	ChannelID uuid.UUID
	Author    domain.Identity
	Content   string
	Type      string
	ParentID  *uuid.UUID
	// ConnID is the connection the message came from, if any.
	ConnID string
}

type EditMessageInput struct {
	MessageID uuid.UUID
	EditorID  uuid.UUID
	Content   string
	// Version, when set, is the version the editor last saw. Otherwise the
	// version read here is used.
	Version *int64
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

func (s *MessageService) Create(ctx context.Context, in CreateMessageInput) (*domain.Message, error) {
	if in.Type == "" {
		in.Type = domain.MessageTypeText
	}
	if errs := validator.ValidateMessage(in.Content, in.Type); errs.HasErrors() {
		return nil, validationError(errs)
	}

	if _, err := s.channels.AuthorizeJoin(ctx, in.Author.UserID, in.ChannelID); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ChannelID != in.ChannelID || parent.IsDeleted {
			return nil, ErrParentInvalid
		}
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		ChannelID: in.ChannelID,
		SenderID:  in.Author.UserID,
		Content:   in.Content,
		Type:      in.Type,
		ParentID:  in.ParentID,
		Version:   0,
		CreatedAt: s.now(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if full == nil {
		full = msg
	}

	s.notifier.NotifyNewMessage(full)
	s.typing.Stop(in.ChannelID, in.Author, in.ConnID)

	return full, nil
}

// Edit writes new content with a compare-and-swap on the version. A lost
// race is reported as ErrEditConflict and never overwrites.
func (s *MessageService) Edit(ctx context.Context, in EditMessageInput) (*domain.Message, error) {
	if errs := validator.ValidateContent(in.Content); errs.HasErrors() {
		return nil, validationError(errs)
	}

	msg, err := s.getMessage(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != in.EditorID {
		return nil, ErrNotMessageOwner
	}
	if msg.IsDeleted {
		return nil, ErrMessageDeleted
	}

	expected := msg.Version
	if in.Version != nil {
		expected = *in.Version
	}

	err = s.messageRepo.UpdateIfVersion(ctx, msg.ID, expected, in.Content, s.now())
	if errors.Is(err, repository.ErrVersionConflict) {
		metrics.EditConflicts.Inc()
		// A concurrent delete also fails the CAS; report it as such.
		cur, gerr := s.messageRepo.GetByID(ctx, msg.ID)
		if gerr == nil && cur != nil && cur.IsDeleted {
			return nil, ErrMessageDeleted
		}
		return nil, ErrEditConflict
	}
	if err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}

	updated, err := s.getMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyEditedMessage(updated)

	return updated, nil
}

// Delete soft-deletes the message. The version counter is left alone.
func (s *MessageService) Delete(ctx context.Context, messageID, actorID uuid.UUID) (*domain.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if msg.SenderID != actorID {
		role, err := s.channels.ChannelRole(ctx, actorID, msg.ChannelID)
		if err != nil {
			return nil, err
		}
		if !domain.CanModerate(role) {
			return nil, ErrCannotDelete
		}
	}

	if msg.IsDeleted {
		return nil, ErrMessageDeleted
	}

	ok, err := s.messageRepo.SoftDelete(ctx, messageID, domain.DeletedPlaceholder, s.now())
	if err != nil {
		return nil, fmt.Errorf("deleting message: %w", err)
	}
	if !ok {
		return nil, ErrMessageDeleted
	}

	s.notifier.NotifyDeletedMessage(msg.ChannelID, messageID)

	return s.getMessage(ctx, messageID)
}

// Get returns the current state of a message, for re-fetch after a conflict.
func (s *MessageService) Get(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.channels.CheckAccess(ctx, userID, msg.ChannelID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) List(ctx context.Context, userID, channelID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if _, err := s.channels.CheckAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Fetch one extra row to know whether there is another page.
	messages, err := s.messageRepo.ListByChannel(ctx, channelID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

// AddReaction is idempotent. Adding an existing reaction reports no change
// and broadcasts nothing.
func (s *MessageService) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*ReactionChange, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	added, err := s.reactionRepo.Add(ctx, &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("adding reaction: %w", err)
	}

	return s.reactionChanged(ctx, msg, userID, emoji, true, added)
}

// RemoveReaction is idempotent. Removing a missing reaction reports no
// change and broadcasts nothing.
func (s *MessageService) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*ReactionChange, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	removed, err := s.reactionRepo.Remove(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, fmt.Errorf("removing reaction: %w", err)
	}

	return s.reactionChanged(ctx, msg, userID, emoji, false, removed)
}

// Reactions aggregates a message's reactions per emoji, in order of each
// emoji's first use.
func (s *MessageService) Reactions(ctx context.Context, messageID, viewerID uuid.UUID) ([]domain.ReactionGroup, error) {
	if _, err := s.Get(ctx, viewerID, messageID); err != nil {
		return nil, err
	}

	reactions, err := s.reactionRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	groups := []domain.ReactionGroup{}
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, domain.ReactionGroup{Emoji: r.Emoji, Users: []uuid.UUID{}})
		}
		g := &groups[i]
		g.Count++
		g.Users = append(g.Users, r.UserID)
		if r.UserID == viewerID {
			g.Reacted = true
		}
	}
	return groups, nil
}

// reactionTarget returns the message to react to and the emoji in the
// form it is stored under.
func (s *MessageService) reactionTarget(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.Message, string, error) {
	emoji = strings.TrimSpace(emoji)
	if errs := validator.ValidateEmoji(emoji); errs.HasErrors() {
		return nil, "", validationError(errs)
	}
	msg, err := s.Get(ctx, userID, messageID)
	if err != nil {
		return nil, "", err
	}
	if msg.IsDeleted {
		return nil, "", ErrMessageDeleted
	}
	return msg, emoji, nil
}

func (s *MessageService) reactionChanged(ctx context.Context, msg *domain.Message, userID uuid.UUID, emoji string, added, changed bool) (*ReactionChange, error) {
	count, err := s.reactionRepo.Count(ctx, msg.ID, emoji)
	if err != nil {
		return nil, err
	}

	change := &ReactionChange{
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    userID,
		Emoji:     emoji,
		Added:     added,
		Count:     count,
	}
	if changed {
		s.notifier.NotifyReaction(*change)
	}
	return change, nil
}

func (s *MessageService) getMessage(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}
