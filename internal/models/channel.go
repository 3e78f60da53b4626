package models

// Channel is the slice of a channel row needed to link lobbies to it.
// GuildID is empty for DM and group DM channels.
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id,omitempty"`
	Type    int    `json:"type"`
}
