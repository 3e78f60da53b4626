// internal/eventlog/postgres.go
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/events"
)

const createTableQ = `
	CREATE TABLE IF NOT EXISTS lobby_events (
		id             BIGSERIAL PRIMARY KEY,
		type           TEXT NOT NULL,
		lobby_id       TEXT NOT NULL,
		application_id TEXT,
		user_id        TEXT,
		payload        JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)
`

const insertEventQ = `
	INSERT INTO lobby_events (type, lobby_id, application_id, user_id, payload, created_at)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
`

// PostgresWriter stores envelopes in the lobby_events table.
type PostgresWriter struct {
	db database.Querier
}

// NewPostgresWriter wraps a pool (or any database.Querier).
func NewPostgresWriter(db database.Querier) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// Migrate creates the lobby_events table if it does not exist.
func (w *PostgresWriter) Migrate(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createTableQ); err != nil {
		return fmt.Errorf("failed to create lobby_events: %w", err)
	}
	return nil
}

// WriteBatch inserts every envelope in a single transaction.
func (w *PostgresWriter) WriteBatch(ctx context.Context, batch []events.Envelope) error {
	return pgx.BeginFunc(ctx, w.db, func(tx pgx.Tx) error {
		for _, env := range batch {
			_, err := tx.Exec(ctx, insertEventQ,
				env.Type,
				env.LobbyID,
				env.ApplicationID,
				env.UserID,
				[]byte(env.Data),
				time.UnixMilli(env.Timestamp).UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert %s for lobby %s: %w", env.Type, env.LobbyID, err)
			}
		}
		return nil
	})
}
