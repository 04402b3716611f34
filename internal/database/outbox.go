package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxState is where a harvest event stands on its way to the stream.
type OutboxState string

const (
	OutboxPending    OutboxState = "pending"
	OutboxRetrying   OutboxState = "retrying"
	OutboxRelayed    OutboxState = "relayed"
	OutboxDeadLetter OutboxState = "dead_letter"

	// StreamHarvestEvents is read by the market-basket consumer.
	StreamHarvestEvents = "stream:harvest_events"
)

var (
	ErrInvalidEntry  = errors.New("invalid outbox entry")
	ErrEntryNotFound = errors.New("outbox entry not found")
)

// OutboxEntry is one harvest event waiting for the relay. The run fields are
// copied out of the payload so stream entries can be keyed on them without
// decoding it.
type OutboxEntry struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	EventType   string
	Profile     string
	Outcome     string
	RecordCount int
	Payload     json.RawMessage
	Stream      string
	State       OutboxState
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	DueAt       time.Time
	RelayedAt   *time.Time
}

func (e *OutboxEntry) Validate() error {
	var problems []string
	if e.RunID == uuid.Nil {
		problems = append(problems, "missing run_id")
	}
	if e.EventType == "" {
		problems = append(problems, "missing event_type")
	}
	if e.Profile == "" {
		problems = append(problems, "missing profile")
	}
	if len(e.Payload) == 0 {
		problems = append(problems, "missing payload")
	} else if !json.Valid(e.Payload) {
		problems = append(problems, "payload is not JSON")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, ", "))
	}
	return nil
}

// RetryPolicy spaces out relay attempts for one entry: the delay doubles from
// BaseDelay up to MaxDelay, and the entry is dead-lettered after MaxAttempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Minute,
}

// next returns the state and due time of an entry that has now failed
// attempts times.
func (p RetryPolicy) next(attempts int, now time.Time) (OutboxState, time.Time) {
	if attempts >= p.MaxAttempts {
		return OutboxDeadLetter, now
	}

	delay := p.BaseDelay << (attempts - 1)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return OutboxRetrying, now.Add(delay)
}

// Backlog counts the entries the relay has not delivered yet.
type Backlog struct {
	Pending    int64 `json:"pending"`
	Retrying   int64 `json:"retrying"`
	DeadLetter int64 `json:"dead_letter"`
}

// Waiting is the number of entries a later batch will still try to relay.
func (b Backlog) Waiting() int64 {
	return b.Pending + b.Retrying
}

type OutboxRepository struct {
	db     *DB
	policy RetryPolicy
	now    func() time.Time
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db, policy: DefaultRetryPolicy, now: time.Now}
}

// Enqueue adds the entry to tx; it becomes due for the relay once tx commits.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx pgx.Tx, e *OutboxEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Stream == "" {
		e.Stream = StreamHarvestEvents
	}
	e.State = OutboxPending
	e.CreatedAt = r.now()
	e.DueAt = e.CreatedAt

	_, err := tx.Exec(ctx, `
		INSERT INTO harvest_outbox (
			id, run_id, event_type, profile, outcome, record_count,
			payload, stream, state, attempts, created_at, due_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)`,
		e.ID, e.RunID, e.EventType, e.Profile, e.Outcome, e.RecordCount,
		e.Payload, e.Stream, e.State, e.CreatedAt, e.DueAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for run %s: %w", e.EventType, e.RunID, err)
	}
	return nil
}

// Due returns up to limit entries ready for the relay, oldest first.
func (r *OutboxRepository) Due(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, run_id, event_type, profile, outcome, record_count,
			payload, stream, state, attempts, last_error, created_at, due_at, relayed_at
		FROM harvest_outbox
		WHERE state IN ($1, $2) AND due_at <= $3
		ORDER BY created_at
		LIMIT $4`,
		OutboxPending, OutboxRetrying, r.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due outbox entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEntry, error) {
		e := &OutboxEntry{}
		err := row.Scan(&e.ID, &e.RunID, &e.EventType, &e.Profile, &e.Outcome, &e.RecordCount,
			&e.Payload, &e.Stream, &e.State, &e.Attempts, &e.LastError, &e.CreatedAt, &e.DueAt, &e.RelayedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox entries: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) MarkRelayed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE harvest_outbox SET state = $1, relayed_at = $2, last_error = ''
		WHERE id = $3`,
		OutboxRelayed, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry relayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

// Reschedule records a failed relay attempt and returns the entry's new state.
// The update only applies if no other relay touched the entry since it was read.
func (r *OutboxRepository) Reschedule(ctx context.Context, e *OutboxEntry, cause error) (OutboxState, error) {
	attempts := e.Attempts + 1
	state, due := r.policy.next(attempts, r.now())

	if err := r.record(ctx, e, state, attempts, due, cause); err != nil {
		return e.State, err
	}
	return state, nil
}

// Bury dead-letters an entry that can never be relayed.
func (r *OutboxRepository) Bury(ctx context.Context, e *OutboxEntry, cause error) error {
	return r.record(ctx, e, OutboxDeadLetter, e.Attempts+1, r.now(), cause)
}

func (r *OutboxRepository) record(ctx context.Context, e *OutboxEntry, state OutboxState, attempts int, due time.Time, cause error) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE harvest_outbox SET state = $1, attempts = $2, last_error = $3, due_at = $4
		WHERE id = $5 AND attempts = $6`,
		state, attempts, cause.Error(), due, e.ID, e.Attempts)
	if err != nil {
		return fmt.Errorf("failed to record relay failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at attempt %d", ErrEntryNotFound, e.ID, e.Attempts)
	}

	e.State, e.Attempts, e.LastError, e.DueAt = state, attempts, cause.Error(), due
	return nil
}

func (r *OutboxRepository) Backlog(ctx context.Context) (Backlog, error) {
	var b Backlog
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = $1),
			COUNT(*) FILTER (WHERE state = $2),
			COUNT(*) FILTER (WHERE state = $3)
		FROM harvest_outbox`,
		OutboxPending, OutboxRetrying, OutboxDeadLetter).Scan(&b.Pending, &b.Retrying, &b.DeadLetter)
	if err != nil {
		return Backlog{}, fmt.Errorf("failed to count outbox backlog: %w", err)
	}
	return b, nil
}
