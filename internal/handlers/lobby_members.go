// internal/handlers/lobby_members.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

type memberBody struct {
	Metadata map[string]string `json:"metadata"`
	Flags    int               `json:"flags"`
}

// PutMemberHandler adds the user to the lobby, or replaces their entry.
func (s *LobbyServer) PutMemberHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbyID := r.PathValue("lobby_id")
	if _, ok := s.Store.Get(lobbyID); !ok {
		writeError(w, ErrUnknownLobby)
		return
	}

	var body memberBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := validateMetadata("metadata", body.Metadata); err != nil {
		writeError(w, err)
		return
	}

	member := models.LobbyMember{
		ID:       r.PathValue("user_id"),
		Metadata: body.Metadata,
		Flags:    body.Flags,
	}
	ok, full := s.Store.AddOrReplaceMemberCapped(lobbyID, member, lobby.MaxMembers)
	if !ok {
		writeError(w, ErrUnknownLobby)
		return
	}
	if full {
		writeError(w, tooManyMembers())
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// DeleteMemberHandler removes the user from the lobby. Removing the last member
// deletes the lobby.
func (s *LobbyServer) DeleteMemberHandler(w http.ResponseWriter, r *http.Request, userID string) {
	lobbyID := r.PathValue("lobby_id")
	if _, ok := s.Store.Get(lobbyID); !ok {
		writeError(w, ErrUnknownLobby)
		return
	}
	if !s.Store.RemoveMember(lobbyID, r.PathValue("user_id")) {
		writeError(w, ErrUnknownMember)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
