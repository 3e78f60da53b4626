// internal/lobby/lobby.go
package lobby

import (
	"maps"
	"slices"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

// Event names emitted by the Store.
const (
	EventLobbyCreate       = "LOBBY_CREATE"
	EventLobbyUpdate       = "LOBBY_UPDATE"
	EventLobbyMemberAdd    = "LOBBY_MEMBER_ADD"
	EventLobbyMemberRemove = "LOBBY_MEMBER_REMOVE"
	EventLobbyDelete       = "LOBBY_DELETE"
)

// FlagCanLinkLobby is member flag bit 0. Members carrying it may link the lobby to a channel.
const FlagCanLinkLobby = 1 << 0

// Limits enforced by the HTTP layer before calling into the Store.
const (
	MaxMembers            = 25
	MaxMetadataLength     = 1000
	MinIdleTimeoutSeconds = 5
	MaxIdleTimeoutSeconds = 604800

	DefaultIdleTimeoutSeconds = 300
)

// Lobby is an ephemeral, memory-only grouping of members owned by an application.
type Lobby struct {
	ID            string
	ApplicationID string
	Metadata      map[string]string
	Members       []models.LobbyMember

	// LinkedChannel is empty when the lobby is not linked.
	LinkedChannel      string
	IdleTimeoutSeconds int

	CreatedAt    time.Time
	LastActivity time.Time
}

// Update carries the fields of a partial lobby update. Nil fields are left untouched.
// A non-nil LinkedChannel pointing at "" unlinks the lobby.
type Update struct {
	Metadata           *map[string]string
	Members            *[]models.LobbyMember
	IdleTimeoutSeconds *int
	LinkedChannel      *string
}

// Event is a notification emitted after every state transition.
//
// ApplicationID and UserID are routing hints for the delivery layer: create, update
// and delete are scoped to the owning application, member events to the member.
//
// Seq is assigned under the store lock and increases by one per event, so it
// reflects the order state changed in even when two dispatches race.
type Event struct {
	Type          string
	Seq           int64
	LobbyID       string
	ApplicationID string
	UserID        string
	Data          any
}

// Notifier receives lobby events. Implementations must not block for long; the
// Store calls Notify synchronously after releasing its lock.
type Notifier interface {
	Notify(evt Event)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(evt Event)

func (f NotifierFunc) Notify(evt Event) { f(evt) }

// Clock is the time source used for activity tracking and eviction.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock (with Go's monotonic reading attached).
var SystemClock Clock = systemClock{}

// Response returns the public projection of the lobby.
func (l Lobby) Response() models.LobbyResponse {
	resp := models.LobbyResponse{
		ID:            l.ID,
		ApplicationID: l.ApplicationID,
		Metadata:      maps.Clone(l.Metadata),
		Members:       cloneMembers(l.Members),
	}
	if l.LinkedChannel != "" {
		resp.LinkedChannel = &models.LinkedChannel{ID: l.LinkedChannel}
	}
	return resp
}

// HasMember reports whether the roster contains the given id.
func (l Lobby) HasMember(memberID string) bool {
	return l.memberIndex(memberID) >= 0
}

// Member returns the roster entry for memberID.
func (l Lobby) Member(memberID string) (models.LobbyMember, bool) {
	i := l.memberIndex(memberID)
	if i < 0 {
		return models.LobbyMember{}, false
	}
	return cloneMember(l.Members[i]), true
}

func (l *Lobby) memberIndex(memberID string) int {
	return slices.IndexFunc(l.Members, func(m models.LobbyMember) bool {
		return m.ID == memberID
	})
}

// idleFor reports how long the lobby has been inactive as of now.
func (l *Lobby) idleFor(now time.Time) time.Duration {
	return now.Sub(l.LastActivity)
}

func (l *Lobby) idleTimeout() time.Duration {
	return time.Duration(l.IdleTimeoutSeconds) * time.Second
}

// touch moves LastActivity forward, never backwards.
func (l *Lobby) touch(now time.Time) {
	if now.After(l.LastActivity) {
		l.LastActivity = now
	}
}

// clone returns a deep copy safe to hand out of the store.
func (l *Lobby) clone() Lobby {
	c := *l
	c.Metadata = maps.Clone(l.Metadata)
	c.Members = cloneMembers(l.Members)
	return c
}

func cloneMember(m models.LobbyMember) models.LobbyMember {
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

func cloneMembers(members []models.LobbyMember) []models.LobbyMember {
	out := make([]models.LobbyMember, len(members))
	for i, m := range members {
		out[i] = cloneMember(m)
	}
	return out
}

// dedupMembers keeps the first position of each id and the last value written for it,
// matching repeated add-or-replace calls.
func dedupMembers(members []models.LobbyMember) []models.LobbyMember {
	out := make([]models.LobbyMember, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if i, ok := index[m.ID]; ok {
			out[i] = cloneMember(m)
			continue
		}
		index[m.ID] = len(out)
		out = append(out, cloneMember(m))
	}
	return out
}
