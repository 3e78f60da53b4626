// internal/events/redis.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Envelope is the JSON record pushed onto the Redis queue for every lobby event.
type Envelope struct {
	Type          string          `json:"type"`
	Seq           int64           `json:"seq"`
	LobbyID       string          `json:"lobby_id"`
	ApplicationID string          `json:"application_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Data          json.RawMessage `json:"data"`
	Timestamp     int64           `json:"timestamp"` // epoch millis
}

// NewEnvelope serializes evt into an Envelope stamped with at.
func NewEnvelope(evt lobby.Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", evt.Type, err)
	}
	return Envelope{
		Type:          evt.Type,
		Seq:           evt.Seq,
		LobbyID:       evt.LobbyID,
		ApplicationID: evt.ApplicationID,
		UserID:        evt.UserID,
		Data:          data,
		Timestamp:     at.UnixMilli(),
	}, nil
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisPublisher pushes lobby events onto a Redis list for out-of-process consumers.
// Notification is fire-and-forget: failures are logged, never surfaced to the store.
type RedisPublisher struct {
	rdb     redis.Cmdable
	queue   string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewRedisPublisher returns a publisher writing to queue.
func NewRedisPublisher(rdb redis.Cmdable, queue string, logger logrus.FieldLogger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		queue:   queue,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Notify implements lobby.Notifier.
func (p *RedisPublisher) Notify(evt lobby.Event) {
	if err := p.Publish(context.Background(), evt); err != nil {
		p.logger.WithFields(logrus.Fields{
			"event":    evt.Type,
			"lobby_id": evt.LobbyID,
		}).Warnf("failed to publish lobby event: %v", err)
	}
}

// Publish serializes the event and RPUSHes it to the queue.
func (p *RedisPublisher) Publish(ctx context.Context, evt lobby.Event) error {
	env, err := NewEnvelope(evt, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
