package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeStreamWriter records XADDs and fails those whose profile is listed.
type fakeStreamWriter struct {
	added   []*redis.XAddArgs
	failFor map[string]error
}

func (f *fakeStreamWriter) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	fields := streamFields(args)
	if err, ok := f.failFor[fmt.Sprint(fields["profile"])]; ok {
		return redis.NewStringResult("", err)
	}
	f.added = append(f.added, args)
	return redis.NewStringResult(fmt.Sprintf("%d-0", len(f.added)), nil)
}

func streamFields(args *redis.XAddArgs) map[string]any {
	values := args.Values.([]any)
	fields := make(map[string]any, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		fields[values[i].(string)] = values[i+1]
	}
	return fields
}

type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) Due(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]*OutboxEntry)
	return entries, args.Error(1)
}

func (m *MockOutboxStore) MarkRelayed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxStore) Reschedule(ctx context.Context, e *OutboxEntry, cause error) (OutboxState, error) {
	args := m.Called(ctx, e, cause)
	return args.Get(0).(OutboxState), args.Error(1)
}

func (m *MockOutboxStore) Bury(ctx context.Context, e *OutboxEntry, cause error) error {
	return m.Called(ctx, e, cause).Error(0)
}

func (m *MockOutboxStore) Backlog(ctx context.Context) (Backlog, error) {
	args := m.Called(ctx)
	return args.Get(0).(Backlog), args.Error(1)
}

func queued(eventType, profile string) *OutboxEntry {
	e := runEvent(eventType, profile)
	e.ID = uuid.New()
	e.Stream = StreamHarvestEvents
	e.State = OutboxPending
	e.CreatedAt = time.Now()
	return e
}

func newTestRelay(w StreamWriter, store OutboxStore) *Relay {
	return &Relay{
		redis:     w,
		outbox:    store,
		interval:  20 * time.Millisecond,
		batchSize: 25,
		logger:    slog.Default(),
	}
}

func TestRelayKeysStreamEntryOnRun(t *testing.T) {
	ctx := context.Background()
	writer := &fakeStreamWriter{}
	store := new(MockOutboxStore)
	relay := newTestRelay(writer, store)
	relay.maxLen = 10000

	e := queued("HARVEST_COMPLETED", "walmart")
	store.On("Due", ctx, 25).Return([]*OutboxEntry{e}, nil)
	store.On("MarkRelayed", ctx, e.ID).Return(nil)

	res, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Relayed: 1}, res)
	store.AssertExpectations(t)

	require.Len(t, writer.added, 1)
	args := writer.added[0]
	assert.Equal(t, StreamHarvestEvents, args.Stream)
	assert.Equal(t, int64(10000), args.MaxLen)
	assert.True(t, args.Approx)

	fields := streamFields(args)
	assert.Equal(t, "HARVEST_COMPLETED", fields["event_type"])
	assert.Equal(t, e.RunID.String(), fields["run_id"])
	assert.Equal(t, "walmart", fields["profile"])
	assert.Equal(t, "page_limit", fields["outcome"])
	assert.Equal(t, 380, fields["record_count"])
	assert.Equal(t, e.ID.String(), fields["outbox_id"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(fields["data"].(string)), &payload))
	assert.Equal(t, e.RunID.String(), payload["run_id"])
}

func TestRelayUnboundedStream(t *testing.T) {
	relay := newTestRelay(&fakeStreamWriter{}, new(MockOutboxStore))
	args := relay.streamArgs(queued("HARVEST_FAILED", "foodbasics"))
	assert.Zero(t, args.MaxLen)
	assert.False(t, args.Approx)
}

func TestRelayBatchWithFailures(t *testing.T) {
	ctx := context.Background()
	redisDown := errors.New("READONLY You can't write against a read only replica")
	writer := &fakeStreamWriter{failFor: map[string]error{"foodbasics": redisDown}}
	store := new(MockOutboxStore)
	relay := newTestRelay(writer, store)

	walmart := queued("HARVEST_COMPLETED", "walmart")
	foodbasics := queued("HARVEST_COMPLETED", "foodbasics")
	exhausted := queued("HARVEST_FAILED", "foodbasics")
	exhausted.Attempts = 4

	store.On("Due", ctx, 25).Return([]*OutboxEntry{foodbasics, walmart, exhausted}, nil)
	store.On("Reschedule", ctx, foodbasics, redisDown).Return(OutboxRetrying, nil)
	store.On("Reschedule", ctx, exhausted, redisDown).Return(OutboxDeadLetter, nil)
	store.On("MarkRelayed", ctx, walmart.ID).Return(nil)

	res, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Relayed: 1, Retrying: 1, DeadLettered: 1}, res)
	store.AssertExpectations(t)

	require.Len(t, writer.added, 1)
	assert.Equal(t, "walmart", streamFields(writer.added[0])["profile"])
}

func TestRelayBuriesCorruptPayload(t *testing.T) {
	ctx := context.Background()
	writer := &fakeStreamWriter{}
	store := new(MockOutboxStore)
	relay := newTestRelay(writer, store)

	e := queued("HARVEST_COMPLETED", "walmart")
	e.Payload = json.RawMessage(`{"run_id":`)

	store.On("Due", ctx, 25).Return([]*OutboxEntry{e}, nil)
	store.On("Bury", ctx, e, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, ErrInvalidEntry)
	})).Return(nil)

	res, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{DeadLettered: 1}, res)
	assert.Empty(t, writer.added)
	store.AssertExpectations(t)
}

func TestRelayKeepsStateWhenOutboxUpdateFails(t *testing.T) {
	ctx := context.Background()
	store := new(MockOutboxStore)
	relay := newTestRelay(&fakeStreamWriter{}, store)

	e := queued("HARVEST_COMPLETED", "walmart")
	store.On("Due", ctx, 25).Return([]*OutboxEntry{e}, nil)
	store.On("MarkRelayed", ctx, e.ID).Return(errors.New("conn closed"))

	res, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, res)
}

func TestRelayDueFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockOutboxStore)
	relay := newTestRelay(&fakeStreamWriter{}, store)

	store.On("Due", ctx, 25).Return(nil, errors.New("too many clients already"))

	_, err := relay.ProcessOnce(ctx)
	assert.ErrorContains(t, err, "too many clients")
}

func TestRelayBacklogCounts(t *testing.T) {
	ctx := context.Background()
	store := new(MockOutboxStore)
	relay := newTestRelay(&fakeStreamWriter{}, store)

	store.On("Backlog", ctx).Return(Backlog{Pending: 2, Retrying: 1, DeadLetter: 4}, nil)

	pending, err := relay.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	dead, err := relay.GetDeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), dead)

	store.ExpectedCalls = nil
	store.On("Backlog", ctx).Return(Backlog{}, errors.New("timeout"))
	_, err = relay.GetPendingCount(ctx)
	assert.Error(t, err)
}

func TestRelayStartPollsUntilCancelled(t *testing.T) {
	store := new(MockOutboxStore)
	relay := newTestRelay(&fakeStreamWriter{}, store)

	polled := make(chan struct{}, 1)
	store.On("Due", mock.Anything, 25).
		Run(func(mock.Arguments) {
			select {
			case polled <- struct{}{}:
			default:
			}
		}).
		Return([]*OutboxEntry{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-polled:
		case <-time.After(time.Second):
			t.Fatal("relay did not poll the outbox")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
