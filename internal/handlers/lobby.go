// internal/handlers/lobby.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// CreateLobbyHandler creates an ephemeral lobby owned by the caller. Nothing is persisted.
func (s *LobbyServer) CreateLobbyHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var body lobbyBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, err)
		return
	}

	lobbyID, err := uuid.NewV7()
	if err != nil {
		s.Logger.Errorf("failed to generate lobby id: %v", err)
		writeError(w, ErrInternal)
		return
	}

	seed := lobby.Lobby{
		ID:                 lobbyID.String(),
		ApplicationID:      userID,
		IdleTimeoutSeconds: lobby.DefaultIdleTimeoutSeconds,
	}
	seed.Metadata = body.Metadata.Value
	if body.Members != nil {
		seed.Members = *body.Members
	}
	if body.IdleTimeoutSeconds != nil {
		seed.IdleTimeoutSeconds = *body.IdleTimeoutSeconds
	}

	created := s.Store.Create(seed)
	writeJSON(w, http.StatusOK, created.Response())
}

// ListLobbiesHandler returns every lobby owned by the caller.
func (s *LobbyServer) ListLobbiesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbies := s.Store.List(userID)
	out := make([]models.LobbyResponse, len(lobbies))
	for i, l := range lobbies {
		out[i] = l.Response()
	}
	writeJSON(w, http.StatusOK, out)
}

// GetLobbyHandler returns a lobby. Reading it counts as activity.
func (s *LobbyServer) GetLobbyHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbyID := r.PathValue("lobby_id")
	l, ok := s.Store.Get(lobbyID)
	if !ok {
		writeError(w, ErrUnknownLobby)
		return
	}
	s.Store.Touch(lobbyID)
	writeJSON(w, http.StatusOK, l.Response())
}

// UpdateLobbyHandler applies the fields present in the body.
func (s *LobbyServer) UpdateLobbyHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbyID := r.PathValue("lobby_id")
	if _, ok := s.Store.Get(lobbyID); !ok {
		writeError(w, ErrUnknownLobby)
		return
	}

	var body lobbyBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, err)
		return
	}

	updated, ok := s.Store.Update(lobbyID, lobby.Update{
		Metadata:           body.Metadata.update(),
		Members:            body.Members,
		IdleTimeoutSeconds: body.IdleTimeoutSeconds,
	})
	if !ok {
		// evicted between the lookup and the update
		writeError(w, ErrUnknownLobby)
		return
	}
	writeJSON(w, http.StatusOK, updated.Response())
}

// DeleteLobbyHandler removes a lobby.
func (s *LobbyServer) DeleteLobbyHandler(w http.ResponseWriter, r *http.Request, userID string) {
	if !s.Store.Delete(r.PathValue("lobby_id")) {
		writeError(w, ErrUnknownLobby)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type channelLinkBody struct {
	ChannelID string `json:"channel_id"`
}

// LinkChannelHandler links the lobby to a channel, or unlinks it when channel_id
// is empty. Only members with FlagCanLinkLobby may do this.
func (s *LobbyServer) LinkChannelHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbyID := r.PathValue("lobby_id")
	l, ok := s.Store.Get(lobbyID)
	if !ok {
		writeError(w, ErrUnknownLobby)
		return
	}

	var body channelLinkBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	member, ok := l.Member(userID)
	if !ok {
		writeError(w, ErrUnknownMember)
		return
	}
	if member.Flags&lobby.FlagCanLinkLobby == 0 {
		writeError(w, ErrMissingPermissions)
		return
	}

	if body.ChannelID != "" {
		if apiErr := s.checkChannel(r, body.ChannelID, userID); apiErr != nil {
			writeError(w, apiErr)
			return
		}
	}

	updated, ok := s.Store.Update(lobbyID, lobby.Update{LinkedChannel: &body.ChannelID})
	if !ok {
		writeError(w, ErrUnknownLobby)
		return
	}
	writeJSON(w, http.StatusOK, updated.Response())
}

// checkChannel verifies the channel exists and, for guild channels, that the
// caller belongs to the guild.
func (s *LobbyServer) checkChannel(r *http.Request, channelID, userID string) *APIError {
	if s.Channels == nil {
		return ErrUnknownChannel
	}

	channel, err := s.Channels.LookupChannel(r.Context(), channelID)
	if errors.Is(err, database.ErrUnknownChannel) {
		return ErrUnknownChannel
	}
	if err != nil {
		s.Logger.WithField("channel_id", channelID).Errorf("channel lookup failed: %v", err)
		return ErrInternal
	}
	if channel.GuildID == "" {
		return nil
	}

	isMember, err := s.Channels.IsGuildMember(r.Context(), channel.GuildID, userID)
	if err != nil {
		s.Logger.WithFields(logrus.Fields{
			"guild_id": channel.GuildID,
			"user_id":  userID,
		}).Errorf("guild membership lookup failed: %v", err)
		return ErrInternal
	}
	if !isMember {
		return ErrMissingPermissions
	}
	return nil
}
