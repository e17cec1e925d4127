package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
	"github.com/unnita1235/ConnectNow-sub000/pkg/validator"
	"golang.org/x/sync/singleflight"
)

var (
	ErrDMConversationNotFound = fmt.Errorf("dm conversation %w", domain.ErrNotFound)
	ErrDMNotParticipant       = fmt.Errorf("you are not a participant of this conversation: %w", domain.ErrForbidden)
	ErrDMMessageNotFound      = fmt.Errorf("dm message %w", domain.ErrNotFound)
	ErrCannotDMSelf           = fmt.Errorf("cannot start a conversation with yourself: %w", domain.ErrValidation)
	ErrRecipientUnavailable   = fmt.Errorf("recipient cannot receive messages: %w", domain.ErrForbidden)
)

type DMService struct {
	dmRepo   repository.DMRepository
	userRepo repository.UserRepository
	notifier Notifier
	resolves singleflight.Group
	now      func() time.Time
}

func NewDMService(dmRepo repository.DMRepository, userRepo repository.UserRepository) *DMService {
	return &DMService{
		dmRepo:   dmRepo,
		userRepo: userRepo,
		notifier: nopNotifier{},
		now:      time.Now,
	}
}

func (s *DMService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendDMInput struct {
	Sender      domain.Identity
	RecipientID uuid.UUID
	Content     string
}

// CanonicalPair orders two user ids so the smaller comes first. The string
// form of a uuid sorts the same as its bytes, which matches the store's
// CHECK (user1_id < user2_id).
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Resolve returns the pair's conversation, creating it on first use.
// Concurrent callers in this process share one lookup; a duplicate insert
// from another process is resolved by re-reading.
func (s *DMService) Resolve(ctx context.Context, userA, userB uuid.UUID) (*domain.DMConversation, error) {
	if userA == userB {
		return nil, ErrCannotDMSelf
	}
	u1, u2 := CanonicalPair(userA, userB)

	v, err, _ := s.resolves.Do(u1.String()+":"+u2.String(), func() (any, error) {
		return s.getOrCreate(ctx, u1, u2)
	})
	if err != nil {
		return nil, err
	}
	conv := *v.(*domain.DMConversation)
	return &conv, nil
}

func (s *DMService) getOrCreate(ctx context.Context, u1, u2 uuid.UUID) (*domain.DMConversation, error) {
	conv, err := s.dmRepo.GetConversationByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domain.DMConversation{
		ID:        uuid.New(),
		User1ID:   u1,
		User2ID:   u2,
		CreatedAt: s.now(),
	}

	err = s.dmRepo.CreateConversation(ctx, conv)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err := s.dmRepo.GetConversationByUsers(ctx, u1, u2)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("dm conversation vanished after duplicate insert")
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating dm conversation: %w", err)
	}

	return conv, nil
}

// OpenConversation resolves the conversation between userID and a
// recipient who must exist and be able to receive messages.
func (s *DMService) OpenConversation(ctx context.Context, userID, recipientID uuid.UUID) (*domain.DMConversation, error) {
	if userID == recipientID {
		return nil, ErrCannotDMSelf
	}

	recipient, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, ErrUserNotFound
	}
	if !recipient.CanConnect() {
		return nil, ErrRecipientUnavailable
	}

	return s.Resolve(ctx, userID, recipientID)
}

// SendDirectMessage stores the message, bumps the conversation and delivers
// dm.new to the recipient. Acknowledging the sender is left to the caller.
func (s *DMService) SendDirectMessage(ctx context.Context, in SendDMInput) (*domain.DMMessage, error) {
	if errs := validator.ValidateContent(in.Content); errs.HasErrors() {
		return nil, validationError(errs)
	}
	conv, err := s.OpenConversation(ctx, in.Sender.UserID, in.RecipientID)
	if err != nil {
		return nil, err
	}

	msg := &domain.DMMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       in.Sender.UserID,
		RecipientID:    in.RecipientID,
		Content:        in.Content,
		CreatedAt:      s.now(),
	}

	if err := s.dmRepo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating dm message: %w", err)
	}
	if err := s.dmRepo.TouchConversation(ctx, conv.ID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("updating dm conversation: %w", err)
	}

	s.notifier.NotifyNewDM(msg)

	return msg, nil
}

// MarkRead records how far userID has read and tells the other participant.
func (s *DMService) MarkRead(ctx context.Context, userID, conversationID, messageID uuid.UUID) (*domain.DMReadState, error) {
	conv, err := s.checkParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.dmRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.ConversationID != conversationID {
		return nil, ErrDMMessageNotFound
	}

	state := &domain.DMReadState{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: messageID,
		ReadAt:            s.now(),
	}
	if err := s.dmRepo.UpsertReadState(ctx, state); err != nil {
		return nil, fmt.Errorf("saving read state: %w", err)
	}

	s.notifier.NotifyDMRead(conv.Other(userID), state)

	return state, nil
}

func (s *DMService) checkParticipant(ctx context.Context, userID, conversationID uuid.UUID) (*domain.DMConversation, error) {
	conv, err := s.dmRepo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrDMConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrDMNotParticipant
	}
	return conv, nil
}
