// internal/eventlog/eventlog.go is the archive side of the lobby event queue: it
// pops envelopes pushed by events.RedisPublisher and persists them in batches.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Writer persists a batch of envelopes atomically.
type Writer interface {
	WriteBatch(ctx context.Context, batch []events.Envelope) error
}

// Options configures a Consumer.
type Options struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
	// PollTimeout bounds each BLPOP so flushes and cancellation are noticed.
	PollTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Consumer drains the lobby event queue into a Writer.
type Consumer struct {
	rdb    redis.Cmdable
	writer Writer
	opts   Options

	batch     []events.Envelope
	lastFlush time.Time
}

// NewConsumer builds a Consumer, filling defaults for unset options.
func NewConsumer(rdb redis.Cmdable, writer Writer, opts Options) *Consumer {
	if opts.Queue == "" {
		opts.Queue = "lobby_events"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Consumer{
		rdb:    rdb,
		writer: writer,
		opts:   opts,
		batch:  make([]events.Envelope, 0, opts.BatchSize),
	}
}

// Run pops envelopes until ctx is done, then flushes what it holds and returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.lastFlush = time.Now()
	c.opts.Logger.WithField("queue", c.opts.Queue).Info("event log consumer started")

	for {
		if ctx.Err() != nil {
			// ctx is already done; flush with a fresh deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.flush(flushCtx)
			cancel()
			c.opts.Logger.Info("event log consumer stopped")
			return err
		}

		res, err := c.rdb.BLPop(ctx, c.opts.PollTimeout, c.opts.Queue).Result()
		switch {
		case err == nil && len(res) == 2:
			// res[0] is the queue name and res[1] the payload
			var env events.Envelope
			if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
				c.opts.Logger.Warnf("invalid event envelope: %v", err)
				break
			}
			c.batch = append(c.batch, env)
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			// poll timed out or we're shutting down
		case err != nil:
			c.opts.Logger.Errorf("BLPop: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.PollTimeout):
			}
		}

		if len(c.batch) >= c.opts.BatchSize || time.Since(c.lastFlush) >= c.opts.FlushInterval {
			if err := c.flush(ctx); err != nil {
				c.opts.Logger.Errorf("flush: %v", err)
			}
		}
	}
}

// flush writes the current batch. On failure the batch is kept for the next attempt.
func (c *Consumer) flush(ctx context.Context) error {
	c.lastFlush = time.Now()
	if len(c.batch) == 0 {
		return nil
	}
	if err := c.writer.WriteBatch(ctx, c.batch); err != nil {
		return fmt.Errorf("failed to write %d events: %w", len(c.batch), err)
	}
	c.opts.Logger.Debugf("flushed %d lobby events", len(c.batch))
	c.batch = c.batch[:0]
	return nil
}
