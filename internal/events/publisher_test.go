package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Enqueue(ctx context.Context, tx pgx.Tx, e *database.OutboxEntry) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

// fakeTx runs fn without a real transaction and records whether it would commit.
type fakeTx struct {
	calls     int
	committed bool
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	f.calls++
	if err := fn(nil); err != nil {
		return err
	}
	f.committed = true
	return nil
}

func finishedRun() *models.HarvestRun {
	run := models.NewHarvestRun("walmart", models.DefaultColumns)
	run.PagesVisited = 10
	run.PageErrors = 1
	run.RecordCount = 380
	run.Artifact = "walmart.csv"
	run.Finish(models.OutcomePageLimit)
	return run
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	outbox := new(MockOutbox)
	tx := &fakeTx{}
	p := &Publisher{db: tx, outbox: outbox, logger: slog.Default()}
	run := finishedRun()

	var captured *database.OutboxEntry
	outbox.On("Enqueue", ctx, mock.Anything, mock.AnythingOfType("*database.OutboxEntry")).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*database.OutboxEntry)
		}).
		Return(nil)

	require.NoError(t, p.Publish(ctx, EventTypeHarvestCompleted, run))
	assert.True(t, tx.committed)
	outbox.AssertExpectations(t)

	require.NotNil(t, captured)
	assert.Equal(t, run.ID, captured.RunID)
	assert.Equal(t, "HARVEST_COMPLETED", captured.EventType)
	assert.Equal(t, "walmart", captured.Profile)
	assert.Equal(t, "page_limit", captured.Outcome)
	assert.Equal(t, 380, captured.RecordCount)
	assert.Equal(t, database.StreamHarvestEvents, captured.Stream)

	var payload HarvestPayload
	require.NoError(t, json.Unmarshal(captured.Payload, &payload))
	assert.Equal(t, "walmart", payload.Profile)
	assert.Equal(t, "page_limit", payload.Outcome)
	assert.Equal(t, 380, payload.RecordCount)
	assert.Equal(t, 1, payload.PageErrors)
	assert.Equal(t, "walmart.csv", payload.Artifact)
	assert.Equal(t, models.DefaultColumns, payload.Columns)
	assert.NotEmpty(t, payload.EventID)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestPublishOutboxFailure(t *testing.T) {
	ctx := context.Background()
	outbox := new(MockOutbox)
	tx := &fakeTx{}
	p := &Publisher{db: tx, outbox: outbox, logger: slog.Default()}

	insertErr := errors.New("relation \"harvest_outbox\" does not exist")
	outbox.On("Enqueue", ctx, mock.Anything, mock.Anything).Return(insertErr)

	err := p.Publish(ctx, EventTypeHarvestFailed, finishedRun())
	assert.ErrorIs(t, err, insertErr)
	assert.False(t, tx.committed)
}

func TestNewHarvestPayloadFailed(t *testing.T) {
	run := models.NewHarvestRun("foodbasics", []string{models.ColumnTitle, models.ColumnPrice})
	run.Error = "site unreachable: https://www.foodbasics.ca after 3 attempts"
	run.Finish(models.OutcomeFailed)

	payload := NewHarvestPayload(EventTypeHarvestFailed, run)
	assert.Equal(t, "HARVEST_FAILED", payload.EventType)
	assert.Equal(t, "failed", payload.Outcome)
	assert.Contains(t, payload.Error, "unreachable")
	assert.Zero(t, payload.RecordCount)
}
