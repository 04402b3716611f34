package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/events"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/maltedev/basket-harvester/internal/queue"
	"github.com/maltedev/basket-harvester/internal/scraper"
	"github.com/maltedev/basket-harvester/internal/sink"
)

// Runner executes one harvest task to completion.
type Runner interface {
	Run(ctx context.Context, task *queue.Task) (*models.HarvestRun, error)
}

type failurePublisher interface {
	Publish(ctx context.Context, eventType events.EventType, run *models.HarvestRun) error
}

type harvestFunc func(ctx context.Context, p *profile.Profile, s scraper.Sink, opts scraper.Options) (*models.HarvestRun, error)

// HarvestRunner resolves the task's profile, assembles the sinks and runs the
// harvester. With a database the run is also stored in Postgres, and a run that
// ends in an error is announced as HARVEST_FAILED.
type HarvestRunner struct {
	opts      scraper.Options
	outputDir string
	db        *database.DB
	publisher failurePublisher
	harvest   harvestFunc
	logger    *slog.Logger
}

// NewHarvestRunner builds a runner. db may be nil.
func NewHarvestRunner(opts scraper.Options, outputDir string, db *database.DB, logger *slog.Logger) *HarvestRunner {
	r := &HarvestRunner{
		opts:      opts,
		outputDir: outputDir,
		db:        db,
		harvest:   runHarvester,
		logger:    logger.With("component", "harvest_runner"),
	}
	if db != nil {
		r.publisher = events.NewPublisher(db, logger)
	}
	return r
}

func (r *HarvestRunner) Run(ctx context.Context, task *queue.Task) (*models.HarvestRun, error) {
	p, err := profile.Resolve(task.Profile, task.ProfileFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}

	opts := r.opts
	if task.MaxPages > 0 {
		opts.MaxPages = task.MaxPages
	}

	sinks := []sink.Sink{sink.NewCSV(r.outputPath(task, p), p.Columns)}
	if r.db != nil {
		sinks = append(sinks, sink.NewPostgres(r.db, r.logger))
	}

	run, err := r.harvest(ctx, p, sink.NewMulti(sinks...), opts)
	if err != nil && run != nil && r.publisher != nil {
		if pubErr := r.publisher.Publish(context.WithoutCancel(ctx), events.EventTypeHarvestFailed, run); pubErr != nil {
			r.logger.Error("failed to publish failure event", "run_id", run.ID, "error", pubErr)
		}
	}

	return run, err
}

func (r *HarvestRunner) outputPath(task *queue.Task, p *profile.Profile) string {
	if task.Output != "" {
		return task.Output
	}
	return filepath.Join(r.outputDir, fmt.Sprintf("%s-%s.csv", p.Name, task.ID.String()[:8]))
}

func runHarvester(ctx context.Context, p *profile.Profile, s scraper.Sink, opts scraper.Options) (*models.HarvestRun, error) {
	return scraper.New(p, s, opts).Run(ctx)
}
