// internal/models/lobby.go
package models

// LobbyMember is a single entry in a lobby's roster.
type LobbyMember struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Flags    int               `json:"flags"`
}

// LinkedChannel references the channel a lobby is linked to.
type LinkedChannel struct {
	ID string `json:"id"`
}

// LobbyResponse is the public projection of a lobby. Internal bookkeeping
// (creation time, last activity) is never part of it.
type LobbyResponse struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	Metadata      map[string]string `json:"metadata"`
	Members       []LobbyMember     `json:"members"`
	LinkedChannel *LinkedChannel    `json:"linked_channel,omitempty"`
}

// LobbyMemberEvent is the payload of LOBBY_MEMBER_ADD and LOBBY_MEMBER_REMOVE.
type LobbyMemberEvent struct {
	LobbyID string      `json:"lobby_id"`
	Member  LobbyMember `json:"member"`
}

// LobbyDeleteEvent is the payload of LOBBY_DELETE.
type LobbyDeleteEvent struct {
	LobbyID string `json:"lobby_id"`
}
