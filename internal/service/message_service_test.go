package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

func (w *world) post(t *testing.T, author domain.User, channelID uuid.UUID, content string) *domain.Message {
	t.Helper()
	msg, err := w.messages.Create(context.Background(), CreateMessageInput{
		ChannelID: channelID,
		Author:    author.Identity(),
		Content:   content,
	})
	require.NoError(t, err)
	return msg
}

func TestMessage_CreateAutoJoinsPublicChannel(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	member, err := w.channels.IsChannelMember(ctx, w.alice.ID, w.public)
	require.NoError(t, err)
	require.False(t, member)

	w.typing.Start(w.public, w.alice.Identity(), "conn-a")

	msg, err := w.messages.Create(ctx, CreateMessageInput{
		ChannelID: w.public,
		Author:    w.alice.Identity(),
		Content:   "hello",
		ConnID:    "conn-a",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), msg.Version)
	assert.Equal(t, domain.MessageTypeText, msg.Type)
	assert.Equal(t, "alice", msg.SenderUsername)
	assert.False(t, msg.IsEdited)

	member, err = w.channels.IsChannelMember(ctx, w.alice.ID, w.public)
	require.NoError(t, err)
	assert.True(t, member)

	require.Len(t, w.rec.created, 1)
	assert.Equal(t, msg.ID, w.rec.created[0].ID)

	assert.False(t, w.typing.IsTyping(w.public, w.alice.ID))
	calls := w.rec.typingCalls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.False(t, last.Typing)
	assert.Equal(t, w.alice.ID, last.UserID)
}

func TestMessage_CreateAuthorization(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	tcases := []struct {
		name    string
		author  domain.User
		channel uuid.UUID
		err     error
	}{
		{name: "private non-member", author: w.alice, channel: w.private, err: domain.ErrForbidden},
		{name: "private member", author: w.bob, channel: w.private},
		{name: "public outsider", author: w.outsider, channel: w.public, err: ErrNotMember},
		{name: "archived", author: w.alice, channel: w.archived, err: ErrChannelArchived},
		{name: "unknown channel", author: w.alice, channel: uuid.New(), err: domain.ErrNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.messages.Create(ctx, CreateMessageInput{ChannelID: tc.channel, Author: tc.author.Identity(), Content: "x"})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMessage_CreateValidatesParent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	parent := w.post(t, w.alice, w.public, "root")
	other := w.post(t, w.bob, w.private, "elsewhere")
	gone := w.post(t, w.alice, w.public, "to delete")
	_, err := w.messages.Delete(ctx, gone.ID, w.alice.ID)
	require.NoError(t, err)

	for name, parentID := range map[string]uuid.UUID{
		"missing":       uuid.New(),
		"other channel": other.ID,
		"deleted":       gone.ID,
	} {
		t.Run(name, func(t *testing.T) {
			pid := parentID
			_, err := w.messages.Create(ctx, CreateMessageInput{ChannelID: w.public, Author: w.alice.Identity(), Content: "reply", ParentID: &pid})
			assert.ErrorIs(t, err, domain.ErrInvalidParent)
		})
	}

	reply, err := w.messages.Create(ctx, CreateMessageInput{ChannelID: w.public, Author: w.bob.Identity(), Content: "reply", ParentID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)
}

func TestMessage_CreateRejectsInvalidContent(t *testing.T) {
	w := newWorld(t)

	_, err := w.messages.Create(context.Background(), CreateMessageInput{ChannelID: w.public, Author: w.alice.Identity(), Content: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, w.rec.created)
}

func TestMessage_EditThenModeratorDelete(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "hello")

	edited, err := w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", edited.Content)
	assert.Equal(t, int64(1), edited.Version)
	assert.True(t, edited.IsEdited)
	require.Len(t, w.rec.edited, 1)
	assert.Equal(t, "hi", w.rec.edited[0].Content)

	deleted, err := w.messages.Delete(ctx, msg.ID, w.mod.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, domain.DeletedPlaceholder, deleted.Content)
	assert.Equal(t, int64(1), deleted.Version)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, []uuid.UUID{msg.ID}, w.rec.deleted)

	_, err = w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: "again"})
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	_, err = w.messages.Delete(ctx, msg.ID, w.alice.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)
	assert.Len(t, w.rec.deleted, 1)
}

func TestMessage_EditAndDeletePermissions(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "mine")

	_, err := w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.mod.ID, Content: "theirs"})
	assert.ErrorIs(t, err, ErrNotMessageOwner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = w.messages.Delete(ctx, msg.ID, w.bob.ID)
	assert.ErrorIs(t, err, ErrCannotDelete)

	_, err = w.messages.Edit(ctx, EditMessageInput{MessageID: uuid.New(), EditorID: w.alice.ID, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = w.messages.Delete(ctx, uuid.New(), w.alice.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = w.messages.Delete(ctx, msg.ID, w.alice.ID)
	assert.NoError(t, err)
}

func TestMessage_StaleEditConflicts(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "v0")
	for _, content := range []string{"v1", "v2"} {
		_, err := w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: content})
		require.NoError(t, err)
	}

	// Both editors read version 2; one wins and moves it to 3.
	seen := int64(2)
	winner, err := w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: "v3", Version: &seen})
	require.NoError(t, err)
	assert.Equal(t, int64(3), winner.Version)

	_, err = w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: "lost", Version: &seen})
	assert.ErrorIs(t, err, ErrEditConflict)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	cur, err := w.messages.Get(ctx, w.alice.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "v3", cur.Content)
	assert.Equal(t, int64(3), cur.Version)
}

func TestMessage_ConcurrentEditsOneWinner(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "start")
	seen := msg.Version

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.messages.Edit(ctx, EditMessageInput{MessageID: msg.ID, EditorID: w.alice.ID, Content: fmt.Sprintf("edit %d", i), Version: &seen})
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, domain.ErrConcurrentModification):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), conflicts.Load())

	cur, err := w.messages.Get(ctx, w.alice.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cur.Version)
}

func TestMessage_ReactionsAreIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "react to me")

	first, err := w.messages.AddReaction(ctx, msg.ID, w.mod.ID, "👍")
	require.NoError(t, err)
	second, err := w.messages.AddReaction(ctx, msg.ID, w.mod.ID, "👍")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 1, second.Count)
	assert.Equal(t, 1, w.store.ReactionCount())
	require.Len(t, w.rec.reactions, 1)
	assert.True(t, w.rec.reactions[0].Added)

	_, err = w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "👍")
	require.NoError(t, err)
	_, err = w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "🎉")
	require.NoError(t, err)

	groups, err := w.messages.Reactions(ctx, msg.ID, w.alice.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "👍", groups[0].Emoji)
	assert.Equal(t, 2, groups[0].Count)
	assert.ElementsMatch(t, []uuid.UUID{w.mod.ID, w.alice.ID}, groups[0].Users)
	assert.True(t, groups[0].Reacted)
	assert.Equal(t, "🎉", groups[1].Emoji)
	assert.Equal(t, 1, groups[1].Count)

	removed, err := w.messages.RemoveReaction(ctx, msg.ID, w.mod.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, 1, removed.Count)
	_, err = w.messages.RemoveReaction(ctx, msg.ID, w.mod.ID, "👍")
	require.NoError(t, err)

	// Three adds that changed something plus one remove.
	assert.Len(t, w.rec.reactions, 4)
	assert.False(t, w.rec.reactions[3].Added)

	groups, err = w.messages.Reactions(ctx, msg.ID, w.mod.ID)
	require.NoError(t, err)
	assert.False(t, groups[0].Reacted)
}

func TestMessage_ReactionEmojiIsTrimmed(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "x")

	added, err := w.messages.AddReaction(ctx, msg.ID, w.alice.ID, " 👍\n")
	require.NoError(t, err)
	assert.Equal(t, "👍", added.Emoji)

	again, err := w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Count)
	assert.Equal(t, 1, w.store.ReactionCount())
	assert.Len(t, w.rec.reactions, 1)

	removed, err := w.messages.RemoveReaction(ctx, msg.ID, w.alice.ID, "👍 ")
	require.NoError(t, err)
	assert.Zero(t, removed.Count)
	assert.Zero(t, w.store.ReactionCount())

	_, err = w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMessage_ReactionValidation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg := w.post(t, w.alice, w.public, "x")

	_, err := w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = w.messages.AddReaction(ctx, msg.ID, w.outsider.ID, "👍")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = w.messages.Delete(ctx, msg.ID, w.alice.ID)
	require.NoError(t, err)
	_, err = w.messages.AddReaction(ctx, msg.ID, w.alice.ID, "👍")
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)
}

func TestMessage_ListPages(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, w.post(t, w.alice, w.public, fmt.Sprintf("m%d", i)).ID)
	}

	page, err := w.messages.List(ctx, w.bob.ID, w.public, nil, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, ids[1], page.Messages[0].ID)
	assert.Equal(t, ids[2], page.Messages[1].ID)

	page, err = w.messages.List(ctx, w.bob.ID, w.public, &ids[1], 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, ids[0], page.Messages[0].ID)

	_, err = w.messages.List(ctx, w.outsider.ID, w.public, nil, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
