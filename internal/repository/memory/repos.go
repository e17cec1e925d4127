package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

var (
	_ repository.UserRepository      = (*UserRepo)(nil)
	_ repository.WorkspaceRepository = (*WorkspaceRepo)(nil)
	_ repository.ChannelRepository   = (*ChannelRepo)(nil)
	_ repository.PresenceRepository  = (*PresenceRepo)(nil)
	_ repository.MessageRepository   = (*MessageRepo)(nil)
	_ repository.ReactionRepository  = (*ReactionRepo)(nil)
	_ repository.DMRepository        = (*DMRepo)(nil)
)

type UserRepo struct{ s *Store }

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type WorkspaceRepo struct{ s *Store }

func (r *WorkspaceRepo) GetMember(_ context.Context, workspaceID, userID uuid.UUID) (*domain.WorkspaceMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.workspaceMembers[memberKey{workspaceID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *WorkspaceRepo) ListPeers(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	workspaces := make(map[uuid.UUID]struct{})
	for k := range r.s.workspaceMembers {
		if k.user == userID {
			workspaces[k.scope] = struct{}{}
		}
	}

	seen := make(map[uuid.UUID]struct{})
	var peers []uuid.UUID
	for k := range r.s.workspaceMembers {
		if k.user == userID {
			continue
		}
		if _, ok := workspaces[k.scope]; !ok {
			continue
		}
		if _, ok := seen[k.user]; ok {
			continue
		}
		seen[k.user] = struct{}{}
		peers = append(peers, k.user)
	}
	return peers, nil
}

type ChannelRepo struct{ s *Store }

func (r *ChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ch, ok := r.s.channels[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (r *ChannelRepo) AddMember(_ context.Context, m *domain.ChannelMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey{m.ChannelID, m.UserID}
	if _, ok := r.s.channelMembers[key]; ok {
		return repository.ErrDuplicate
	}
	r.s.channelMembers[key] = *m
	return nil
}

func (r *ChannelRepo) GetMember(_ context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.channelMembers[memberKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

type PresenceRepo struct{ s *Store }

func (r *PresenceRepo) Get(_ context.Context, userID uuid.UUID) (*domain.Presence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.presence[userID]
	if !ok {
		return nil, nil
	}
	p.Connections = len(r.s.connections[userID])
	return &p, nil
}

func (r *PresenceRepo) AddConnection(_ context.Context, userID uuid.UUID, connID string, at time.Time) (*domain.Presence, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.presence[userID]
	if !ok {
		p = domain.Presence{UserID: userID, Status: domain.PresenceOffline, LastActiveAt: at}
	}
	set, ok := r.s.connections[userID]
	if !ok {
		set = make(map[string]struct{})
		r.s.connections[userID] = set
	}
	_, existed := set[connID]
	set[connID] = struct{}{}

	changed := !existed && len(set) == 1
	if changed {
		p.Status = domain.PresenceOnline
		p.LastActiveAt = at
	}
	r.s.presence[userID] = p
	p.Connections = len(set)
	return &p, changed, nil
}

func (r *PresenceRepo) RemoveConnection(_ context.Context, userID uuid.UUID, connID string, at time.Time) (*domain.Presence, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.presence[userID]
	if !ok {
		p = domain.Presence{UserID: userID, Status: domain.PresenceOffline, LastActiveAt: at}
	}
	set := r.s.connections[userID]
	_, existed := set[connID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.s.connections, userID)
	}

	changed := existed && len(set) == 0
	if changed {
		p.Status = domain.PresenceOffline
		p.LastActiveAt = at
	}
	r.s.presence[userID] = p
	p.Connections = len(set)
	return &p, changed, nil
}

func (r *PresenceRepo) SetStatus(_ context.Context, userID uuid.UUID, status domain.PresenceStatus, statusText *string, at time.Time) (*domain.Presence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := len(r.s.connections[userID])
	if n == 0 {
		return nil, nil
	}
	p := domain.Presence{
		UserID:       userID,
		Status:       status,
		StatusText:   statusText,
		LastActiveAt: at,
	}
	r.s.presence[userID] = p
	p.Connections = n
	return &p, nil
}

type MessageRepo struct{ s *Store }

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := *msg
	stored.UpdatedAt = msg.CreatedAt
	r.s.messages[msg.ID] = stored
	r.s.messageOrder = append(r.s.messageOrder, msg.ID)
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[id]
	if !ok {
		return nil, nil
	}
	r.s.joinSender(&msg)
	return &msg, nil
}

func (r *MessageRepo) ListByChannel(_ context.Context, channelID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	end := len(r.s.messageOrder)
	if before != nil {
		for i, id := range r.s.messageOrder {
			if id == *before {
				end = i
				break
			}
		}
	}

	var out []domain.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		msg := r.s.messages[r.s.messageOrder[i]]
		if msg.ChannelID != channelID {
			continue
		}
		r.s.joinSender(&msg)
		out = append(out, msg)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepo) UpdateIfVersion(_ context.Context, id uuid.UUID, expectedVersion int64, content string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[id]
	if !ok || msg.IsDeleted || msg.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	msg.Content = content
	msg.IsEdited = true
	msg.Version++
	msg.UpdatedAt = at
	r.s.messages[id] = msg
	return nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id uuid.UUID, placeholder string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[id]
	if !ok || msg.IsDeleted {
		return false, nil
	}
	msg.IsDeleted = true
	msg.Content = placeholder
	msg.DeletedAt = &at
	msg.UpdatedAt = at
	r.s.messages[id] = msg
	return true, nil
}

func (s *Store) joinSender(msg *domain.Message) {
	if u, ok := s.users[msg.SenderID]; ok {
		msg.SenderUsername = u.Username
		msg.SenderDisplayName = u.DisplayName
	}
}

type ReactionRepo struct{ s *Store }

func (r *ReactionRepo) Add(_ context.Context, re *domain.Reaction) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := reactionKey{re.MessageID, re.UserID, re.Emoji}
	if _, ok := r.s.reactions[key]; ok {
		return false, nil
	}
	r.s.reactions[key] = *re
	r.s.reactionOrder = append(r.s.reactionOrder, key)
	return true, nil
}

func (r *ReactionRepo) Remove(_ context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := reactionKey{messageID, userID, emoji}
	if _, ok := r.s.reactions[key]; !ok {
		return false, nil
	}
	delete(r.s.reactions, key)
	for i, k := range r.s.reactionOrder {
		if k == key {
			r.s.reactionOrder = append(r.s.reactionOrder[:i], r.s.reactionOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *ReactionRepo) Count(_ context.Context, messageID uuid.UUID, emoji string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k := range r.s.reactions {
		if k.message == messageID && k.emoji == emoji {
			n++
		}
	}
	return n, nil
}

func (r *ReactionRepo) ListByMessage(_ context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Reaction
	for _, k := range r.s.reactionOrder {
		if k.message == messageID {
			out = append(out, r.s.reactions[k])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type DMRepo struct{ s *Store }

func (r *DMRepo) CreateConversation(_ context.Context, conv *domain.DMConversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{conv.User1ID, conv.User2ID}
	if _, ok := r.s.pairs[key]; ok {
		return repository.ErrDuplicate
	}
	r.s.pairs[key] = conv.ID
	r.s.conversations[conv.ID] = *conv
	return nil
}

func (r *DMRepo) GetConversationByUsers(_ context.Context, user1ID, user2ID uuid.UUID) (*domain.DMConversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.pairs[pairKey{user1ID, user2ID}]
	if !ok {
		return nil, nil
	}
	conv := r.s.conversations[id]
	return &conv, nil
}

func (r *DMRepo) GetConversationByID(_ context.Context, id uuid.UUID) (*domain.DMConversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conv, ok := r.s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (r *DMRepo) CreateMessage(_ context.Context, msg *domain.DMMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.dmMessages[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.dmMessages[msg.ID] = *msg
	return nil
}

func (r *DMRepo) GetMessageByID(_ context.Context, id uuid.UUID) (*domain.DMMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.dmMessages[id]
	if !ok {
		return nil, nil
	}
	if conv, ok := r.s.conversations[msg.ConversationID]; ok {
		msg.RecipientID = conv.Other(msg.SenderID)
	}
	return &msg, nil
}

func (r *DMRepo) TouchConversation(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conv, ok := r.s.conversations[id]
	if !ok {
		return nil
	}
	if conv.LastMessageAt == nil || conv.LastMessageAt.Before(at) {
		conv.LastMessageAt = &at
		r.s.conversations[id] = conv
	}
	return nil
}

func (r *DMRepo) UpsertReadState(_ context.Context, st *domain.DMReadState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.readStates[memberKey{st.ConversationID, st.UserID}] = *st
	return nil
}

// ReadState exposes stored read markers to tests.
func (r *DMRepo) ReadState(conversationID, userID uuid.UUID) (domain.DMReadState, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.readStates[memberKey{conversationID, userID}]
	return st, ok
}
