package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository/memory"
)

func TestDM_ResolveIsOrderIndependent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	ab, err := w.dms.Resolve(ctx, w.alice.ID, w.bob.ID)
	require.NoError(t, err)
	ba, err := w.dms.Resolve(ctx, w.bob.ID, w.alice.ID)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, 1, w.store.ConversationCount())
	assert.True(t, ab.User1ID.String() < ab.User2ID.String())

	_, err = w.dms.Resolve(ctx, w.alice.ID, w.alice.ID)
	assert.ErrorIs(t, err, ErrCannotDMSelf)
}

func TestDM_ConcurrentFirstResolveCreatesOne(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	ids := make(chan uuid.UUID, 40)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := w.alice.ID, w.bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := w.dms.Resolve(ctx, a, b)
			if assert.NoError(t, err) {
				ids <- conv.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	var first uuid.UUID
	for id := range ids {
		if first == uuid.Nil {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Equal(t, 1, w.store.ConversationCount())
}

// racingDMRepo simulates another instance inserting the pair between our
// read and our insert.
type racingDMRepo struct {
	*memory.DMRepo
	once sync.Once
}

func (r *racingDMRepo) GetConversationByUsers(ctx context.Context, u1, u2 uuid.UUID) (*domain.DMConversation, error) {
	raced := false
	r.once.Do(func() {
		raced = true
		_ = r.DMRepo.CreateConversation(ctx, &domain.DMConversation{ID: uuid.New(), User1ID: u1, User2ID: u2, CreatedAt: time.Now()})
	})
	if raced {
		return nil, nil
	}
	return r.DMRepo.GetConversationByUsers(ctx, u1, u2)
}

func TestDM_DuplicateInsertResolvesByReRead(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	svc := NewDMService(&racingDMRepo{DMRepo: w.store.DMs()}, w.store.Users())

	conv, err := svc.Resolve(ctx, w.bob.ID, w.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, w.store.ConversationCount())

	again, err := svc.Resolve(ctx, w.alice.ID, w.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestDM_SendDirectMessage(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg, err := w.dms.SendDirectMessage(ctx, SendDMInput{Sender: w.alice.Identity(), RecipientID: w.bob.ID, Content: "psst"})
	require.NoError(t, err)
	assert.Equal(t, w.bob.ID, msg.RecipientID)

	conv, err := w.store.DMs().GetConversationByID(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, conv.LastMessageAt.Equal(msg.CreatedAt))

	require.Len(t, w.rec.dms, 1)
	assert.Equal(t, msg.ID, w.rec.dms[0].ID)

	reply, err := w.dms.SendDirectMessage(ctx, SendDMInput{Sender: w.bob.Identity(), RecipientID: w.alice.ID, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, msg.ConversationID, reply.ConversationID)
	assert.Equal(t, 1, w.store.ConversationCount())
}

func TestDM_SendDirectMessageErrors(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	tcases := []struct {
		name      string
		recipient uuid.UUID
		content   string
		err       error
	}{
		{name: "self", recipient: w.alice.ID, content: "x", err: ErrCannotDMSelf},
		{name: "unknown recipient", recipient: uuid.New(), content: "x", err: domain.ErrNotFound},
		{name: "banned recipient", recipient: w.banned.ID, content: "x", err: ErrRecipientUnavailable},
		{name: "empty content", recipient: w.bob.ID, content: "", err: domain.ErrValidation},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.dms.SendDirectMessage(ctx, SendDMInput{Sender: w.alice.Identity(), RecipientID: tc.recipient, Content: tc.content})
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assert.Zero(t, w.store.ConversationCount())
	assert.Empty(t, w.rec.dms)
}

func TestDM_MarkRead(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg, err := w.dms.SendDirectMessage(ctx, SendDMInput{Sender: w.alice.Identity(), RecipientID: w.bob.ID, Content: "read me"})
	require.NoError(t, err)

	state, err := w.dms.MarkRead(ctx, w.bob.ID, msg.ConversationID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, state.LastReadMessageID)
	assert.Equal(t, []uuid.UUID{w.alice.ID}, w.rec.reads)

	stored, ok := w.store.DMs().ReadState(msg.ConversationID, w.bob.ID)
	require.True(t, ok)
	assert.Equal(t, msg.ID, stored.LastReadMessageID)

	_, err = w.dms.MarkRead(ctx, w.mod.ID, msg.ConversationID, msg.ID)
	assert.ErrorIs(t, err, ErrDMNotParticipant)

	_, err = w.dms.MarkRead(ctx, w.bob.ID, uuid.New(), msg.ID)
	assert.ErrorIs(t, err, ErrDMConversationNotFound)

	_, err = w.dms.MarkRead(ctx, w.bob.ID, msg.ConversationID, uuid.New())
	assert.ErrorIs(t, err, ErrDMMessageNotFound)
}

func TestDM_OpenConversation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	conv, err := w.dms.OpenConversation(ctx, w.alice.ID, w.bob.ID)
	require.NoError(t, err)
	again, err := w.dms.OpenConversation(ctx, w.bob.ID, w.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	_, err = w.dms.OpenConversation(ctx, w.alice.ID, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = w.dms.OpenConversation(ctx, w.alice.ID, w.banned.ID)
	assert.ErrorIs(t, err, ErrRecipientUnavailable)

	_, err = w.dms.OpenConversation(ctx, w.alice.ID, w.alice.ID)
	assert.ErrorIs(t, err, ErrCannotDMSelf)
}
