package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/basket-harvester/internal/models"
)

var ErrRunNotFound = errors.New("harvest run not found")

var listingColumns = []string{
	"run_id", "position", "page", "title", "link",
	"price_text", "price_amount",
	"rating_text", "rating_value",
	"reviews_text", "reviews_count",
}

// HarvestRepository stores harvest runs and the listings they produced.
type HarvestRepository struct {
	db *DB
}

func NewHarvestRepository(db *DB) *HarvestRepository {
	return &HarvestRepository{db: db}
}

func (r *HarvestRepository) InsertRunWithTx(ctx context.Context, tx pgx.Tx, run *models.HarvestRun) error {
	query := `
		INSERT INTO harvest_runs (
			id, profile, outcome, pages_visited, page_errors,
			record_count, artifact, error_message, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		run.ID, run.Profile, string(run.Outcome), run.PagesVisited, run.PageErrors,
		run.RecordCount, run.Artifact, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert harvest run: %w", err)
	}

	return nil
}

// InsertListingsWithTx bulk-loads records with COPY, keeping crawl order in
// the position column.
func (r *HarvestRepository) InsertListingsWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.ProductRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"product_listings"},
		listingColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return listingRow(runID, i, records[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy listings: %w", err)
	}

	return n, nil
}

func listingRow(runID uuid.UUID, position int, rec models.ProductRecord) []any {
	var (
		amount  *float64
		rating  *float64
		reviews *int32
	)
	if rec.Price.Valid {
		amount = &rec.Price.Amount
	}
	if rec.Rating.Valid {
		rating = &rec.Rating.Value
	}
	if rec.ReviewCount.Valid {
		v := int32(rec.ReviewCount.Value)
		reviews = &v
	}

	return []any{
		runID, int32(position), int32(rec.Page), rec.Title, rec.Link,
		rec.Price.Text, amount,
		rec.Rating.Text, rating,
		rec.ReviewCount.Text, reviews,
	}
}

func (r *HarvestRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.HarvestRun, error) {
	row := r.db.pool.QueryRow(ctx, selectRuns+` WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get harvest run: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *HarvestRepository) ListRuns(ctx context.Context, limit int) ([]*models.HarvestRun, error) {
	rows, err := r.db.pool.Query(ctx, selectRuns+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list harvest runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.HarvestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan harvest run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// ListListings returns a run's records in crawl order.
func (r *HarvestRepository) ListListings(ctx context.Context, runID uuid.UUID) ([]models.ProductRecord, error) {
	query := `
		SELECT page, title, link, price_text, rating_text, reviews_text
		FROM product_listings
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var records []models.ProductRecord
	for rows.Next() {
		var rec models.ProductRecord
		var price, rating, reviews string
		if err := rows.Scan(&rec.Page, &rec.Title, &rec.Link, &price, &rating, &reviews); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		rec.Price = models.ParsePrice(price)
		rec.Rating = models.ParseRating(rating)
		rec.ReviewCount = models.ParseReviewCount(reviews)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

const selectRuns = `
	SELECT id, profile, outcome, pages_visited, page_errors,
		record_count, artifact, error_message, started_at, finished_at
	FROM harvest_runs`

func scanRun(row pgx.Row) (*models.HarvestRun, error) {
	run := &models.HarvestRun{}
	var outcome string

	err := row.Scan(
		&run.ID, &run.Profile, &outcome, &run.PagesVisited, &run.PageErrors,
		&run.RecordCount, &run.Artifact, &run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Outcome = models.Outcome(outcome)
	return run, nil
}
