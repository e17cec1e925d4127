package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository/memory"
)

type typingCall struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	Typing    bool
	Exclude   string
}

type presenceCall struct {
	Audience []uuid.UUID
	Presence domain.Presence
	Change   PresenceChange
}

// recorder is a Notifier that keeps every call for assertions.
type recorder struct {
	mu        sync.Mutex
	created   []domain.Message
	edited    []domain.Message
	deleted   []uuid.UUID
	reactions []ReactionChange
	typing    []typingCall
	presence  []presenceCall
	dms       []domain.DMMessage
	reads     []uuid.UUID
}

func (r *recorder) NotifyNewMessage(msg *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *msg)
}

func (r *recorder) NotifyEditedMessage(msg *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edited = append(r.edited, *msg)
}

func (r *recorder) NotifyDeletedMessage(_, messageID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
}

func (r *recorder) NotifyReaction(change ReactionChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, change)
}

func (r *recorder) NotifyTyping(channelID uuid.UUID, who domain.Identity, typing bool, excludeConn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, typingCall{ChannelID: channelID, UserID: who.UserID, Typing: typing, Exclude: excludeConn})
}

func (r *recorder) NotifyPresence(audience []uuid.UUID, p *domain.Presence, change PresenceChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, presenceCall{Audience: audience, Presence: *p, Change: change})
}

func (r *recorder) NotifyNewDM(msg *domain.DMMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dms = append(r.dms, *msg)
}

func (r *recorder) NotifyDMRead(recipientID uuid.UUID, _ *domain.DMReadState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, recipientID)
}

func (r *recorder) typingCalls() []typingCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]typingCall(nil), r.typing...)
}

func (r *recorder) presenceCalls() []presenceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presenceCall(nil), r.presence...)
}

// world is a seeded store with one workspace, a public and a private
// channel, and a handful of users.
type world struct {
	store *memory.Store
	rec   *recorder

	workspace uuid.UUID
	public    uuid.UUID
	private   uuid.UUID
	archived  uuid.UUID

	alice    domain.User // workspace member, author
	bob      domain.User // workspace member, private channel member
	mod      domain.User // moderator in both channels
	outsider domain.User // no workspace
	banned   domain.User

	channels *ChannelService
	typing   *TypingService
	messages *MessageService
	presence *PresenceService
	dms      *DMService
}

func newUser(name string) domain.User {
	now := time.Now()
	return domain.User{
		ID:          uuid.New(),
		Email:       name + "@example.com",
		Username:    name,
		DisplayName: name,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newWorld(t *testing.T) *world {
	t.Helper()

	w := &world{
		store:     memory.New(),
		rec:       &recorder{},
		workspace: uuid.New(),
		public:    uuid.New(),
		private:   uuid.New(),
		archived:  uuid.New(),
		alice:     newUser("alice"),
		bob:       newUser("bob"),
		mod:       newUser("mod"),
		outsider:  newUser("outsider"),
		banned:    newUser("banned"),
	}
	bannedAt := time.Now()
	w.banned.BannedAt = &bannedAt

	for _, u := range []domain.User{w.alice, w.bob, w.mod, w.outsider, w.banned} {
		w.store.PutUser(u)
	}
	for _, u := range []domain.User{w.alice, w.bob, w.mod, w.banned} {
		w.store.PutWorkspaceMember(domain.WorkspaceMember{WorkspaceID: w.workspace, UserID: u.ID, Role: "member"})
	}

	archivedAt := time.Now()
	w.store.PutChannel(domain.Channel{ID: w.public, WorkspaceID: w.workspace, Name: "general", Type: domain.ChannelTypePublic})
	w.store.PutChannel(domain.Channel{ID: w.private, WorkspaceID: w.workspace, Name: "secret", Type: domain.ChannelTypePrivate})
	w.store.PutChannel(domain.Channel{ID: w.archived, WorkspaceID: w.workspace, Name: "old", Type: domain.ChannelTypePublic, ArchivedAt: &archivedAt})

	w.store.PutChannelMember(domain.ChannelMember{ChannelID: w.public, UserID: w.mod.ID, Role: domain.RoleModerator})
	w.store.PutChannelMember(domain.ChannelMember{ChannelID: w.private, UserID: w.mod.ID, Role: domain.RoleModerator})
	w.store.PutChannelMember(domain.ChannelMember{ChannelID: w.private, UserID: w.bob.ID, Role: domain.RoleMember})

	w.channels = NewChannelService(w.store.Channels(), w.store.Workspaces())
	w.typing = NewTypingService(50 * time.Millisecond)
	w.messages = NewMessageService(w.store.Messages(), w.store.Reactions(), w.channels, w.typing)
	w.presence = NewPresenceService(w.store.Presence(), w.store.Workspaces())
	w.dms = NewDMService(w.store.DMs(), w.store.Users())

	w.typing.SetNotifier(w.rec)
	w.messages.SetNotifier(w.rec)
	w.presence.SetNotifier(w.rec)
	w.dms.SetNotifier(w.rec)

	return w
}
