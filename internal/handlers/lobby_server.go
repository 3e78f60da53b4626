// internal/handlers/lobby_server.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// ChannelLookup resolves channels and guild membership for channel linking.
// *database.ChannelDirectory implements it.
type ChannelLookup interface {
	LookupChannel(ctx context.Context, channelID string) (models.Channel, error)
	IsGuildMember(ctx context.Context, guildID, userID string) (bool, error)
}

// LobbyServer holds the collaborators of the lobby REST routes.
type LobbyServer struct {
	Store    *lobby.Store
	Channels ChannelLookup // nil rejects every channel link
	Logger   *logrus.Logger
}

// NewLobbyServer wires the routes' dependencies.
func NewLobbyServer(store *lobby.Store, channels ChannelLookup, logger *logrus.Logger) *LobbyServer {
	return &LobbyServer{
		Store:    store,
		Channels: channels,
		Logger:   logger,
	}
}

// Register mounts every lobby route on mux under prefix (e.g. "/api/v9").
func (s *LobbyServer) Register(mux *http.ServeMux, prefix string) {
	logged := middleware.LogMiddleware(s.Logger)
	handle := func(pattern string, h authedHandler) {
		mux.Handle(pattern, logged(requireUser(h)))
	}

	handle("POST "+prefix+"/lobbies", s.CreateLobbyHandler)
	handle("GET "+prefix+"/lobbies", s.ListLobbiesHandler)
	handle("GET "+prefix+"/lobbies/{lobby_id}", s.GetLobbyHandler)
	handle("PATCH "+prefix+"/lobbies/{lobby_id}", s.UpdateLobbyHandler)
	handle("DELETE "+prefix+"/lobbies/{lobby_id}", s.DeleteLobbyHandler)
	handle("PATCH "+prefix+"/lobbies/{lobby_id}/channel-linking", s.LinkChannelHandler)
	handle("PUT "+prefix+"/lobbies/{lobby_id}/members/{user_id}", s.PutMemberHandler)
	handle("DELETE "+prefix+"/lobbies/{lobby_id}/members/{user_id}", s.DeleteMemberHandler)
}

// authedHandler is a handler that already knows who is calling.
type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireUser authenticates the request before handing it to next.
func requireUser(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			writeError(w, ErrUnauthorized)
			return
		}
		next(w, r, userID)
	})
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	errInvalidJSON  = &APIError{Status: http.StatusBadRequest, Code: 50109, Message: "The request body contains invalid JSON."}
	errBodyTooLarge = &APIError{Status: http.StatusRequestEntityTooLarge, Code: 40005, Message: "Request entity too large"}
)

// decodeBody reads a single JSON value from the body into v. An empty body leaves
// v untouched. Trailing data after the value is rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) *APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if err == nil {
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return errInvalidJSON
		}
		return nil
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	return errInvalidJSON
}
