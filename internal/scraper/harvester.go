package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/parser"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/maltedev/basket-harvester/internal/ratelimit"
)

// Harvester runs one crawl: connectivity check, page loop, persistence.
type Harvester struct {
	profile *profile.Profile
	parser  parser.Parser
	guard   *Guard
	open    SessionOpener
	sink    Sink
	opts    Options
	logger  *slog.Logger
}

func New(p *profile.Profile, sink Sink, opts Options) *Harvester {
	return &Harvester{
		profile: p,
		parser:  parser.NewListingParser(p),
		guard:   NewGuard(opts.RequestTimeout, opts.UserAgent, opts.ConnectAttempts, opts.ConnectDelay),
		open:    NewOpener(p, opts),
		sink:    sink,
		opts:    opts,
		logger:  slog.Default().With("component", "harvester", "profile", p.Name),
	}
}

// NewOpener picks the session variant for the profile's mode.
func NewOpener(p *profile.Profile, opts Options) SessionOpener {
	if p.Mode == profile.ModeInteractive {
		return func(ctx context.Context) (Session, error) {
			return OpenInteractive(p, opts)
		}
	}

	fetcher := NewStaticFetcher(opts.RequestTimeout, opts.UserAgent)
	return func(ctx context.Context) (Session, error) {
		limiter := ratelimit.NewFixedRateLimiter(opts.PageDelay)
		return NewStaticSession(fetcher, p, limiter), nil
	}
}

// PageLimit is the safety ceiling: the smaller of the profile's page budget and
// the configured maximum.
func (h *Harvester) PageLimit() int {
	limit := h.opts.MaxPages
	if h.profile.Pages > 0 && (limit <= 0 || h.profile.Pages < limit) {
		limit = h.profile.Pages
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// Run harvests the profile and hands the records to the sink exactly once.
// Only connectivity exhaustion, session start-up and sink failures are
// returned as errors; page and pagination failures end the crawl early.
func (h *Harvester) Run(ctx context.Context) (*models.HarvestRun, error) {
	run := models.NewHarvestRun(h.profile.Name, h.profile.Columns)
	logger := h.logger.With("run_id", run.ID)

	checkURL := h.profile.CheckURL()
	reachable, err := h.guard.EnsureReachable(ctx, checkURL)
	if err != nil {
		run.Error = err.Error()
		run.Finish(models.OutcomeFailed)
		return run, err
	}
	if !reachable {
		err := fmt.Errorf("%w: %s after %d attempts", ErrUnreachable, checkURL, h.guard.MaxAttempts())
		run.Error = err.Error()
		run.Finish(models.OutcomeFailed)
		return run, err
	}

	session, err := h.open(ctx)
	if err != nil {
		err = fmt.Errorf("failed to open session: %w", err)
		run.Error = err.Error()
		run.Finish(models.OutcomeFailed)
		return run, err
	}

	closeSession := sync.OnceFunc(func() {
		if err := session.Close(); err != nil {
			logger.Error("failed to close session", "error", err)
		}
	})
	defer closeSession()

	acc := NewAccumulator()
	outcome := h.crawl(ctx, session, acc, logger)
	closeSession()

	if failed, ok := session.(interface{ Err() error }); ok && failed.Err() != nil {
		run.Error = failed.Err().Error()
	}

	records := acc.Drain()
	run.PagesVisited = acc.Pages()
	run.PageErrors = acc.PageErrors()
	run.RecordCount = len(records)
	if dest, ok := h.sink.(Destination); ok {
		run.Artifact = dest.Location()
	}
	run.Finish(outcome)

	if len(records) == 0 {
		logger.Warn("no products scraped", "pages", run.PagesVisited)
	}

	if err := h.sink.Persist(context.WithoutCancel(ctx), run, records); err != nil {
		return run, fmt.Errorf("failed to persist harvest: %w", err)
	}

	logger.Info("harvest finished",
		"outcome", run.Outcome,
		"pages", run.PagesVisited,
		"page_errors", run.PageErrors,
		"records", run.RecordCount,
		"artifact", run.Artifact,
		"duration", run.Duration())

	return run, nil
}

func (h *Harvester) crawl(ctx context.Context, session Session, acc *Accumulator, logger *slog.Logger) models.Outcome {
	limit := h.PageLimit()

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			logger.Warn("harvest cancelled", "page", page, "error", ctx.Err())
			return models.OutcomeCancelled
		}

		result := h.harvestPage(ctx, session, page, logger)
		acc.AppendPage(result)

		if page >= limit {
			logger.Info("page limit reached", "limit", limit)
			return models.OutcomePageLimit
		}

		state := session.Advance(ctx)
		acc.SetHasMore(state == StateReady)

		switch state {
		case StateExhausted:
			return models.OutcomeExhausted
		case StateFailed:
			return models.OutcomeFailed
		}
	}
}

func (h *Harvester) harvestPage(ctx context.Context, session Session, page int, logger *slog.Logger) models.PageResult {
	html, err := session.Fetch(ctx)
	if err != nil {
		logger.Warn("page fetch failed", "page", page, "error", err)
		return models.PageResult{Page: page, Err: err}
	}

	records, err := h.parser.ExtractPage(html)
	if err != nil {
		logger.Warn("page extraction failed", "page", page, "error", err)
		return models.PageResult{Page: page, Err: err}
	}

	for i := range records {
		records[i].Page = page
		logger.Debug("product scraped", "page", page, "title", records[i].Title, "price", records[i].Price.Text)
	}

	logger.Info("page harvested", "page", page, "products", len(records))
	return models.PageResult{Page: page, Records: records}
}
