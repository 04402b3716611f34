package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/redis/go-redis/v9"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamReader interface for Redis stream consumption (for testing)
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives one decoded harvest event. A returned error leaves the
// message pending; it is handed to the handler again on the next pending pass,
// up to MaxDeliveries times.
type Handler func(ctx context.Context, messageID string, payload *HarvestPayload) error

// Consumer reads harvest events from the relay's stream as part of a consumer
// group.
type Consumer struct {
	redis  StreamReader
	stream string
	group  string
	name   string
	block  time.Duration

	// RetryDelay is the pause before failed messages are read back from the
	// pending list.
	RetryDelay time.Duration
	// MaxDeliveries bounds how often one message reaches the handler before it
	// is acknowledged and dropped.
	MaxDeliveries int

	deliveries map[string]int
	now        func() time.Time
	logger     *slog.Logger
}

func NewConsumer(r StreamReader, group, name string, logger *slog.Logger) *Consumer {
	return &Consumer{
		redis:         r,
		stream:        database.StreamHarvestEvents,
		group:         group,
		name:          name,
		block:         5 * time.Second,
		RetryDelay:    30 * time.Second,
		MaxDeliveries: 5,
		deliveries:    make(map[string]int),
		now:           time.Now,
		logger:        logger.With("component", "event_consumer"),
	}
}

// Run consumes until ctx is done. It first works through messages left pending
// for this consumer by an earlier run, then reads new ones. Whenever a handler
// fails, the pending list is read again once RetryDelay has passed.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.stream, "group", c.group, "consumer", c.name)

	draining := true
	cursor := "0"
	var retryAt time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !draining && !retryAt.IsZero() && !c.now().Before(retryAt) {
			draining, cursor, retryAt = true, "0", time.Time{}
		}

		args := &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    10,
			Block:    c.block,
		}
		if draining {
			// history reads never block
			args.Streams[1] = cursor
			args.Block = -1
		}

		streams, err := c.redis.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Error("failed to read from stream", "error", err)
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		var messages []redis.XMessage
		for _, stream := range streams {
			messages = append(messages, stream.Messages...)
		}

		if draining {
			if len(messages) == 0 {
				draining = false
				continue
			}
			cursor = messages[len(messages)-1].ID
		}

		for _, message := range messages {
			if c.deliver(ctx, message, handle) {
				continue
			}
			if retryAt.IsZero() {
				retryAt = c.now().Add(c.RetryDelay)
			}
		}
	}
}

// deliver hands one message to the handler and reports whether it is settled,
// that is acknowledged or dropped.
func (c *Consumer) deliver(ctx context.Context, message redis.XMessage, handle Handler) bool {
	err := c.processMessage(ctx, message, handle)
	switch {
	case err == nil:
		c.ack(ctx, message.ID)
		return true

	case errors.Is(err, ErrMalformedMessage):
		c.logger.Error("dropping malformed message", "id", message.ID, "error", err)
		c.ack(ctx, message.ID)
		return true
	}

	c.deliveries[message.ID]++
	attempts := c.deliveries[message.ID]
	if attempts >= c.MaxDeliveries {
		c.logger.Error("dropping message after repeated failures",
			"id", message.ID,
			"attempts", attempts,
			"error", err)
		c.ack(ctx, message.ID)
		return true
	}

	c.logger.Warn("failed to process message, leaving it pending",
		"id", message.ID,
		"attempt", attempts,
		"error", err)
	return false
}

func (c *Consumer) ack(ctx context.Context, id string) {
	delete(c.deliveries, id)
	if err := c.redis.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", id, "error", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage, handle Handler) error {
	payload, err := DecodeMessage(msg)
	if err != nil {
		return err
	}
	return handle(ctx, msg.ID, payload)
}

// DecodeMessage extracts the harvest payload from a relayed stream entry. The
// run fields next to data are only an index; the payload is authoritative.
func DecodeMessage(msg redis.XMessage) (*HarvestPayload, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing data field", ErrMalformedMessage)
	}

	var payload HarvestPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if payload.RunID == "" {
		return nil, fmt.Errorf("%w: payload has no run_id", ErrMalformedMessage)
	}

	return &payload, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
