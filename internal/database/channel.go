// internal/database/channel.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// ErrUnknownChannel is returned when a channel id does not resolve to a row.
var ErrUnknownChannel = errors.New("unknown channel")

// ChannelDirectory answers the channel and guild membership questions asked
// when a lobby is linked to a channel.
type ChannelDirectory struct {
	db Querier
}

// NewChannelDirectory wraps a pool (or any Querier).
func NewChannelDirectory(db Querier) *ChannelDirectory {
	return &ChannelDirectory{db: db}
}

// LookupChannel fetches a channel by ID.
func (d *ChannelDirectory) LookupChannel(ctx context.Context, channelID string) (models.Channel, error) {
	var c models.Channel
	var guildID *string
	q := `SELECT id, guild_id, type FROM channels WHERE id = $1`
	err := d.db.QueryRow(ctx, q, channelID).Scan(&c.ID, &guildID, &c.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Channel{}, ErrUnknownChannel
	}
	if err != nil {
		return models.Channel{}, fmt.Errorf("failed to look up channel %s: %w", channelID, err)
	}
	if guildID != nil {
		c.GuildID = *guildID
	}
	return c, nil
}

// IsGuildMember reports whether userID is a member of guildID.
func (d *ChannelDirectory) IsGuildMember(ctx context.Context, guildID, userID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM members WHERE guild_id = $1 AND id = $2)`
	if err := d.db.QueryRow(ctx, q, guildID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check guild membership: %w", err)
	}
	return exists, nil
}
