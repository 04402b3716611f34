package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/events"
	"github.com/maltedev/basket-harvester/internal/models"
)

type runStore interface {
	InsertRunWithTx(ctx context.Context, tx pgx.Tx, run *models.HarvestRun) error
	InsertListingsWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.ProductRecord) (int64, error)
}

type eventPublisher interface {
	PublishWithTx(ctx context.Context, tx pgx.Tx, eventType events.EventType, run *models.HarvestRun) error
}

// Postgres stores the run, its listings and a HARVEST_COMPLETED outbox event
// in one transaction.
type Postgres struct {
	db        events.TxRunner
	runs      runStore
	publisher eventPublisher
	logger    *slog.Logger
}

func NewPostgres(db *database.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:        db,
		runs:      database.NewHarvestRepository(db),
		publisher: events.NewPublisher(db, logger),
		logger:    logger.With("component", "postgres_sink"),
	}
}

func (s *Postgres) Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error {
	var copied int64

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.runs.InsertRunWithTx(ctx, tx, run); err != nil {
			return err
		}

		n, err := s.runs.InsertListingsWithTx(ctx, tx, run.ID, records)
		if err != nil {
			return err
		}
		copied = n

		return s.publisher.PublishWithTx(ctx, tx, events.EventTypeHarvestCompleted, run)
	})
	if err != nil {
		return fmt.Errorf("failed to store harvest: %w", err)
	}

	s.logger.Info("harvest stored", "run_id", run.ID, "listings", copied)
	return nil
}
