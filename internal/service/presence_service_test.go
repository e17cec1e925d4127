package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

func TestPresence_TwoConnectionsOneOfflineBroadcast(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	x := w.alice.ID

	require.NoError(t, w.presence.OnConnect(ctx, x, "c1"))
	require.NoError(t, w.presence.OnConnect(ctx, x, "c2"))

	calls := w.rec.presenceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, PresenceWentOnline, calls[0].Change)

	require.NoError(t, w.presence.OnDisconnect(ctx, x, "c1"))
	assert.Len(t, w.rec.presenceCalls(), 1, "first disconnect must not be visible")

	p, err := w.presence.Get(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, p.Status)

	require.NoError(t, w.presence.OnDisconnect(ctx, x, "c2"))
	calls = w.rec.presenceCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, PresenceWentOffline, calls[1].Change)
	assert.Equal(t, domain.PresenceOffline, calls[1].Presence.Status)

	p, err = w.presence.Get(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, p.Status)
	assert.Zero(t, p.Connections)
}

func TestPresence_AudienceIsWorkspacePeers(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	require.NoError(t, w.presence.OnConnect(ctx, w.alice.ID, "c1"))

	calls := w.rec.presenceCalls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, calls[0].Audience, []uuid.UUID{w.bob.ID, w.mod.ID, w.banned.ID})
	assert.NotContains(t, calls[0].Audience, w.outsider.ID)
	assert.NotContains(t, calls[0].Audience, w.alice.ID)
}

func TestPresence_RandomSequenceKeepsInvariant(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	user := w.bob.ID
	rng := rand.New(rand.NewSource(42))

	live := map[string]bool{}
	conns := []string{"a", "b", "c", "d"}

	for i := 0; i < 500; i++ {
		conn := conns[rng.Intn(len(conns))]
		if live[conn] {
			require.NoError(t, w.presence.OnDisconnect(ctx, user, conn))
			delete(live, conn)
		} else {
			require.NoError(t, w.presence.OnConnect(ctx, user, conn))
			live[conn] = true
		}

		p, err := w.presence.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, len(live), p.Connections, "step %d", i)
		assert.Equal(t, len(live) == 0, p.Status == domain.PresenceOffline, "step %d", i)
	}
}

func TestPresence_ConcurrentInterleavings(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			w := newWorld(t)
			ctx := context.Background()
			user := w.alice.ID

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(conn string) {
					defer wg.Done()
					for j := 0; j < 5; j++ {
						assert.NoError(t, w.presence.OnConnect(ctx, user, conn))
						assert.NoError(t, w.presence.OnDisconnect(ctx, user, conn))
					}
				}(fmt.Sprintf("conn-%d", i))
			}
			wg.Wait()

			p, err := w.presence.Get(ctx, user)
			require.NoError(t, err)
			assert.Zero(t, p.Connections)
			assert.Equal(t, domain.PresenceOffline, p.Status)

			// Transitions are serialized, so they strictly alternate.
			calls := w.rec.presenceCalls()
			require.NotEmpty(t, calls)
			for i, c := range calls {
				want := PresenceWentOnline
				if i%2 == 1 {
					want = PresenceWentOffline
				}
				assert.Equal(t, want, c.Change, "transition %d", i)
			}
			assert.Equal(t, PresenceWentOffline, calls[len(calls)-1].Change)
		})
	}
}

func TestPresence_SetStatus(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	text := "in a meeting"

	_, err := w.presence.SetStatus(ctx, w.alice.ID, domain.PresenceBusy, &text)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, w.presence.OnConnect(ctx, w.alice.ID, "c1"))

	_, err = w.presence.SetStatus(ctx, w.alice.ID, domain.PresenceOffline, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := w.presence.SetStatus(ctx, w.alice.ID, domain.PresenceBusy, &text)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceBusy, p.Status)
	require.NotNil(t, p.StatusText)
	assert.Equal(t, text, *p.StatusText)
	assert.Equal(t, 1, p.Connections)

	// Repeating the same status still persists and broadcasts.
	_, err = w.presence.SetStatus(ctx, w.alice.ID, domain.PresenceBusy, &text)
	require.NoError(t, err)

	calls := w.rec.presenceCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, PresenceChanged, calls[1].Change)
	assert.Contains(t, calls[1].Audience, w.alice.ID)
	assert.Equal(t, PresenceChanged, calls[2].Change)

	// Reconnecting after going offline keeps the status text.
	require.NoError(t, w.presence.OnDisconnect(ctx, w.alice.ID, "c1"))
	require.NoError(t, w.presence.OnConnect(ctx, w.alice.ID, "c2"))
	p, err = w.presence.Get(ctx, w.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, p.Status)
	require.NotNil(t, p.StatusText)
	assert.Equal(t, text, *p.StatusText)
}

// Two services sharing one store stand in for two server instances. Their
// per-user locks are independent so only the store keeps them consistent.
func newPeerPresence(w *world) (*PresenceService, *recorder) {
	rec := &recorder{}
	peer := NewPresenceService(w.store.Presence(), w.store.Workspaces())
	peer.SetNotifier(rec)
	return peer, rec
}

func TestPresence_TwoInstancesShareLiveSet(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	peer, peerRec := newPeerPresence(w)
	x := w.alice.ID

	require.NoError(t, w.presence.OnConnect(ctx, x, "c1"))
	require.NoError(t, peer.OnConnect(ctx, x, "c2"))
	assert.Len(t, w.rec.presenceCalls(), 1)
	assert.Empty(t, peerRec.presenceCalls(), "second instance joins an already online user")

	require.NoError(t, w.presence.OnDisconnect(ctx, x, "c1"))
	p, err := w.presence.Get(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, p.Status)
	assert.Equal(t, 1, p.Connections)
	assert.Len(t, w.rec.presenceCalls(), 1)

	require.NoError(t, peer.OnDisconnect(ctx, x, "c2"))
	calls := peerRec.presenceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, PresenceWentOffline, calls[0].Change)

	p, err = w.presence.Get(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, p.Status)
	assert.Zero(t, p.Connections)
}

func TestPresence_TwoInstancesConcurrentChurn(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			w := newWorld(t)
			ctx := context.Background()
			peer, peerRec := newPeerPresence(w)
			user := w.bob.ID
			nodes := []*PresenceService{w.presence, peer}

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(node *PresenceService, conn string) {
					defer wg.Done()
					for j := 0; j < 5; j++ {
						assert.NoError(t, node.OnConnect(ctx, user, conn))
						p, err := node.Get(ctx, user)
						assert.NoError(t, err)
						assert.NotEqual(t, domain.PresenceOffline, p.Status, "user with a live connection reads offline")
						assert.NoError(t, node.OnDisconnect(ctx, user, conn))
					}
				}(nodes[i%2], fmt.Sprintf("conn-%d", i))
			}
			wg.Wait()

			p, err := w.presence.Get(ctx, user)
			require.NoError(t, err)
			assert.Zero(t, p.Connections)
			assert.Equal(t, domain.PresenceOffline, p.Status)

			// Every online edge is matched by exactly one offline edge.
			online, offline := 0, 0
			for _, c := range append(w.rec.presenceCalls(), peerRec.presenceCalls()...) {
				switch c.Change {
				case PresenceWentOnline:
					online++
				case PresenceWentOffline:
					offline++
				}
			}
			assert.Equal(t, online, offline)
			assert.NotZero(t, online)
		})
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	w := newWorld(t)

	unlock := k.Lock(w.alice.ID)
	assert.Equal(t, 1, k.size())
	unlock()
	assert.Zero(t, k.size())
}
