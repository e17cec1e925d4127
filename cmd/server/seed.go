package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository/memory"
	"github.com/unnita1235/ConnectNow-sub000/internal/service"
)

const demoTokenTTL = 24 * time.Hour

// seedDemo fills an in-memory store with one workspace, a public and a
// private channel and three users, and logs a token for each user.
func seedDemo(store *memory.Store, auth *service.AuthService) {
	now := time.Now()
	workspace := uuid.New()

	var users []domain.User
	for _, name := range []string{"alice", "bob", "carol"} {
		u := domain.User{
			ID:          uuid.New(),
			Email:       name + "@example.com",
			Username:    name,
			DisplayName: name,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		store.PutUser(u)
		store.PutWorkspaceMember(domain.WorkspaceMember{WorkspaceID: workspace, UserID: u.ID, Role: domain.RoleMember, JoinedAt: now})
		users = append(users, u)
	}

	general := domain.Channel{ID: uuid.New(), WorkspaceID: workspace, Name: "general", Type: domain.ChannelTypePublic, CreatedBy: users[0].ID, CreatedAt: now}
	private := domain.Channel{ID: uuid.New(), WorkspaceID: workspace, Name: "staff", Type: domain.ChannelTypePrivate, CreatedBy: users[0].ID, CreatedAt: now}
	store.PutChannel(general)
	store.PutChannel(private)
	store.PutChannelMember(domain.ChannelMember{ChannelID: private.ID, UserID: users[0].ID, Role: domain.RoleOwner, JoinedAt: now})
	store.PutChannelMember(domain.ChannelMember{ChannelID: private.ID, UserID: users[1].ID, Role: domain.RoleMember, JoinedAt: now})

	log.Info().Str("general", general.ID.String()).Str("staff", private.ID.String()).Msg("seeded demo channels")
	for _, u := range users {
		token, err := auth.IssueToken(u.ID, demoTokenTTL)
		if err != nil {
			log.Error().Err(err).Str("user", u.Username).Msg("issuing demo token")
			continue
		}
		log.Info().Str("user", u.Username).Str("user_id", u.ID.String()).Str("token", token).Msg("demo user")
	}
}
