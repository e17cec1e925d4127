// Package memory is a mutex-guarded store satisfying the repository
// interfaces. It backs single-node development and the test suites.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

type memberKey struct {
	scope uuid.UUID
	user  uuid.UUID
}

type reactionKey struct {
	message uuid.UUID
	user    uuid.UUID
	emoji   string
}

type pairKey struct {
	user1 uuid.UUID
	user2 uuid.UUID
}

type Store struct {
	mu sync.Mutex

	users            map[uuid.UUID]domain.User
	workspaceMembers map[memberKey]domain.WorkspaceMember
	channels         map[uuid.UUID]domain.Channel
	channelMembers   map[memberKey]domain.ChannelMember
	presence         map[uuid.UUID]domain.Presence
	connections      map[uuid.UUID]map[string]struct{}
	messages         map[uuid.UUID]domain.Message
	messageOrder     []uuid.UUID
	reactions        map[reactionKey]domain.Reaction
	reactionOrder    []reactionKey
	conversations    map[uuid.UUID]domain.DMConversation
	pairs            map[pairKey]uuid.UUID
	dmMessages       map[uuid.UUID]domain.DMMessage
	readStates       map[memberKey]domain.DMReadState
}

func New() *Store {
	return &Store{
		users:            make(map[uuid.UUID]domain.User),
		workspaceMembers: make(map[memberKey]domain.WorkspaceMember),
		channels:         make(map[uuid.UUID]domain.Channel),
		channelMembers:   make(map[memberKey]domain.ChannelMember),
		presence:         make(map[uuid.UUID]domain.Presence),
		connections:      make(map[uuid.UUID]map[string]struct{}),
		messages:         make(map[uuid.UUID]domain.Message),
		reactions:        make(map[reactionKey]domain.Reaction),
		conversations:    make(map[uuid.UUID]domain.DMConversation),
		pairs:            make(map[pairKey]uuid.UUID),
		dmMessages:       make(map[uuid.UUID]domain.DMMessage),
		readStates:       make(map[memberKey]domain.DMReadState),
	}
}

func (s *Store) Users() *UserRepo           { return &UserRepo{s} }
func (s *Store) Workspaces() *WorkspaceRepo { return &WorkspaceRepo{s} }
func (s *Store) Channels() *ChannelRepo     { return &ChannelRepo{s} }
func (s *Store) Presence() *PresenceRepo    { return &PresenceRepo{s} }
func (s *Store) Messages() *MessageRepo     { return &MessageRepo{s} }
func (s *Store) Reactions() *ReactionRepo   { return &ReactionRepo{s} }
func (s *Store) DMs() *DMRepo               { return &DMRepo{s} }

// Seeding helpers for the CRUD-owned tables.

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutWorkspaceMember(m domain.WorkspaceMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceMembers[memberKey{m.WorkspaceID, m.UserID}] = m
}

func (s *Store) PutChannel(ch domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
}

func (s *Store) PutChannelMember(m domain.ChannelMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelMembers[memberKey{m.ChannelID, m.UserID}] = m
}

// ConversationCount is used by tests asserting create-once semantics.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// ReactionCount returns the number of stored reaction rows.
func (s *Store) ReactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reactions)
}
