package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeHarvestCompleted is published once a harvest's records are persisted.
	EventTypeHarvestCompleted EventType = "HARVEST_COMPLETED"
	// EventTypeHarvestFailed is published when a harvest ends without an artifact.
	EventTypeHarvestFailed EventType = "HARVEST_FAILED"
)

// HarvestPayload is the stream message the market-basket consumer reads.
type HarvestPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	Profile      string    `json:"profile"`
	Outcome      string    `json:"outcome"`
	PagesVisited int       `json:"pages_visited"`
	PageErrors   int       `json:"page_errors"`
	RecordCount  int       `json:"record_count"`
	Artifact     string    `json:"artifact,omitempty"`
	Columns      []string  `json:"columns,omitempty"`
	Error        string    `json:"error,omitempty"`
	Source       string    `json:"source"`
}

func NewHarvestPayload(eventType EventType, run *models.HarvestRun) *HarvestPayload {
	return &HarvestPayload{
		EventID:      uuid.New().String(),
		EventType:    string(eventType),
		Timestamp:    time.Now(),
		RunID:        run.ID.String(),
		Profile:      run.Profile,
		Outcome:      string(run.Outcome),
		PagesVisited: run.PagesVisited,
		PageErrors:   run.PageErrors,
		RecordCount:  run.RecordCount,
		Artifact:     run.Artifact,
		Columns:      run.Columns,
		Error:        run.Error,
		Source:       "harvester",
	}
}

type Outbox interface {
	Enqueue(ctx context.Context, tx pgx.Tx, e *database.OutboxEntry) error
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Publisher writes harvest events to the transactional outbox
type Publisher struct {
	db     TxRunner
	outbox Outbox
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishWithTx adds the event to tx, so it is only relayed if tx commits.
func (p *Publisher) PublishWithTx(ctx context.Context, tx pgx.Tx, eventType EventType, run *models.HarvestRun) error {
	payload := NewHarvestPayload(eventType, run)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	entry := &database.OutboxEntry{
		RunID:       run.ID,
		EventType:   payload.EventType,
		Profile:     payload.Profile,
		Outcome:     payload.Outcome,
		RecordCount: payload.RecordCount,
		Payload:     data,
		Stream:      database.StreamHarvestEvents,
	}

	if err := p.outbox.Enqueue(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"run_id", payload.RunID,
		"outbox_id", entry.ID,
	)

	return nil
}

// Publish writes the event in its own transaction.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, run *models.HarvestRun) error {
	err := p.db.WithTx(ctx, func(tx pgx.Tx) error {
		return p.PublishWithTx(ctx, tx, eventType, run)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
