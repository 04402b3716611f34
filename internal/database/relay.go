package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamWriter is the part of the Redis client the relay needs.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type OutboxStore interface {
	Due(ctx context.Context, limit int) ([]*OutboxEntry, error)
	MarkRelayed(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, e *OutboxEntry, cause error) (OutboxState, error)
	Bury(ctx context.Context, e *OutboxEntry, cause error) error
	Backlog(ctx context.Context) (Backlog, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen trims the stream approximately; zero leaves it unbounded.
	StreamMaxLen int64
}

// BatchResult tells where the entries of one relay batch ended up.
type BatchResult struct {
	Relayed      int
	Retrying     int
	DeadLettered int
}

// Relay moves committed harvest events from the outbox onto the Redis stream.
type Relay struct {
	redis     StreamWriter
	outbox    OutboxStore
	interval  time.Duration
	batchSize int
	maxLen    int64
	logger    *slog.Logger
}

func NewRelay(db *DB, redisClient StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    NewOutboxRepository(db),
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		maxLen:    cfg.StreamMaxLen,
		logger:    logger.With("component", "relay"),
	}
}

// Start relays a batch right away and then every poll interval until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("relay batch failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce relays one batch of due entries. A failing entry is rescheduled
// and does not hold up the rest of the batch.
func (r *Relay) ProcessOnce(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	entries, err := r.outbox.Due(ctx, r.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to load due outbox entries: %w", err)
	}

	for _, e := range entries {
		switch r.relayEntry(ctx, e) {
		case OutboxRelayed:
			res.Relayed++
		case OutboxRetrying:
			res.Retrying++
		case OutboxDeadLetter:
			res.DeadLettered++
		}
	}

	if len(entries) > 0 {
		r.logger.Info("outbox batch relayed",
			"relayed", res.Relayed,
			"retrying", res.Retrying,
			"dead_lettered", res.DeadLettered)
	}
	return res, nil
}

// relayEntry returns the state the entry is left in. When the outbox itself
// cannot be updated the entry keeps its state and a later batch picks it up.
func (r *Relay) relayEntry(ctx context.Context, e *OutboxEntry) OutboxState {
	log := r.logger.With("outbox_id", e.ID, "run_id", e.RunID, "event_type", e.EventType)

	if !json.Valid(e.Payload) {
		cause := fmt.Errorf("%w: payload is not JSON", ErrInvalidEntry)
		if err := r.outbox.Bury(ctx, e, cause); err != nil {
			log.Error("failed to dead-letter outbox entry", "error", err)
			return e.State
		}
		log.Error("outbox entry dead-lettered", "error", cause)
		return OutboxDeadLetter
	}

	streamID, err := r.redis.XAdd(ctx, r.streamArgs(e)).Result()
	if err != nil {
		state, rerr := r.outbox.Reschedule(ctx, e, err)
		if rerr != nil {
			log.Error("failed to reschedule outbox entry", "error", rerr, "cause", err)
			return e.State
		}
		log.Warn("failed to relay outbox entry", "state", state, "error", err)
		return state
	}

	if err := r.outbox.MarkRelayed(ctx, e.ID); err != nil {
		// the stream already holds it; consumers see a duplicate on the next batch
		log.Error("failed to mark outbox entry relayed", "stream_id", streamID, "error", err)
		return e.State
	}

	log.Debug("outbox entry relayed", "stream_id", streamID)
	return OutboxRelayed
}

// streamArgs keys the stream entry on the run so consumers can filter on
// profile or outcome without decoding data.
func (r *Relay) streamArgs(e *OutboxEntry) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: e.Stream,
		Values: []any{
			"event_type", e.EventType,
			"run_id", e.RunID.String(),
			"profile", e.Profile,
			"outcome", e.Outcome,
			"record_count", e.RecordCount,
			"outbox_id", e.ID.String(),
			"data", string(e.Payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return args
}

func (r *Relay) Backlog(ctx context.Context) (Backlog, error) {
	return r.outbox.Backlog(ctx)
}

// GetPendingCount returns the entries a later batch will still try to relay.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	b, err := r.outbox.Backlog(ctx)
	if err != nil {
		return 0, err
	}
	return b.Waiting(), nil
}

func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	b, err := r.outbox.Backlog(ctx)
	if err != nil {
		return 0, err
	}
	return b.DeadLetter, nil
}
