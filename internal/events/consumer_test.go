package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamMessage(t *testing.T, id string, payload *HarvestPayload) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	// go-redis hands stream values back as strings
	return redis.XMessage{
		ID: id,
		Values: map[string]any{
			"event_type":   payload.EventType,
			"run_id":       payload.RunID,
			"profile":      payload.Profile,
			"outcome":      payload.Outcome,
			"record_count": strconv.Itoa(payload.RecordCount),
			"data":         string(data),
		},
	}
}

// fakeStream models one consumer's view of a group: ">" hands out new
// entries and moves them to the pending list, any other ID replays pending
// entries after it. Once nothing is new or pending it cancels the consumer.
type fakeStream struct {
	mu        sync.Mutex
	entries   []redis.XMessage
	next      int
	pending   []string
	groupErr  error
	acked     []string
	reads     []string
	cancel    context.CancelFunc
	readCalls int
}

func (f *fakeStream) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", f.groupErr)
}

func (f *fakeStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++

	start := a.Streams[1]
	f.reads = append(f.reads, start)

	var batch []redis.XMessage
	if start == ">" {
		for f.next < len(f.entries) && int64(len(batch)) < a.Count {
			msg := f.entries[f.next]
			f.next++
			f.pending = append(f.pending, msg.ID)
			batch = append(batch, msg)
		}
		if len(batch) == 0 {
			if len(f.pending) == 0 {
				f.cancel()
			}
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
	} else {
		after := start != "0"
		for _, id := range f.pending {
			if after {
				after = id != start
				continue
			}
			batch = append(batch, f.entry(id))
		}
	}

	return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: database.StreamHarvestEvents, Messages: batch}}, nil)
}

func (f *fakeStream) entry(id string) redis.XMessage {
	for _, msg := range f.entries {
		if msg.ID == id {
			return msg
		}
	}
	return redis.XMessage{ID: id}
}

func (f *fakeStream) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	for _, id := range ids {
		for i, p := range f.pending {
			if p == id {
				f.pending = append(f.pending[:i], f.pending[i+1:]...)
				break
			}
		}
	}
	return redis.NewIntResult(int64(len(ids)), nil)
}

func newTestConsumer(stream *fakeStream) *Consumer {
	c := NewConsumer(stream, "basket", "test-1", slog.Default())
	c.RetryDelay = 0
	return c
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completed := NewHarvestPayload(EventTypeHarvestCompleted, models.NewHarvestRun("walmart", models.DefaultColumns))
	failed := NewHarvestPayload(EventTypeHarvestFailed, models.NewHarvestRun("foodbasics", nil))

	stream := &fakeStream{
		cancel: cancel,
		entries: []redis.XMessage{
			streamMessage(t, "1-0", completed),
			streamMessage(t, "2-0", failed),
		},
	}

	var seen []string
	handler := func(ctx context.Context, id string, p *HarvestPayload) error {
		seen = append(seen, p.EventType)
		return nil
	}

	err := newTestConsumer(stream).Run(ctx, handler)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"HARVEST_COMPLETED", "HARVEST_FAILED"}, seen)
	assert.Equal(t, []string{"1-0", "2-0"}, stream.acked)
	assert.Empty(t, stream.pending)
	assert.Equal(t, []string{"0", ">", ">"}, stream.reads)
}

func TestConsumerRedeliversFailedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := NewHarvestPayload(EventTypeHarvestCompleted, models.NewHarvestRun("walmart", models.DefaultColumns))
	stream := &fakeStream{cancel: cancel, entries: []redis.XMessage{streamMessage(t, "1-0", payload)}}

	calls := 0
	handler := func(ctx context.Context, id string, p *HarvestPayload) error {
		calls++
		if calls == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	}

	err := newTestConsumer(stream).Run(ctx, handler)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"1-0"}, stream.acked)
	assert.Empty(t, stream.pending)
	assert.Contains(t, stream.reads[2:], "0")
}

func TestConsumerDrainsPendingOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := NewHarvestPayload(EventTypeHarvestCompleted, models.NewHarvestRun("walmart", models.DefaultColumns))
	stream := &fakeStream{
		cancel:  cancel,
		entries: []redis.XMessage{streamMessage(t, "1-0", payload)},
		next:    1,
		pending: []string{"1-0"},
	}

	var ids []string
	err := newTestConsumer(stream).Run(ctx, func(ctx context.Context, id string, p *HarvestPayload) error {
		ids = append(ids, id)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"1-0"}, ids)
	assert.Equal(t, []string{"0", "1-0", ">"}, stream.reads)
}

func TestConsumerDropsAfterMaxDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := NewHarvestPayload(EventTypeHarvestFailed, models.NewHarvestRun("foodbasics", nil))
	stream := &fakeStream{cancel: cancel, entries: []redis.XMessage{streamMessage(t, "1-0", payload)}}

	c := newTestConsumer(stream)
	c.MaxDeliveries = 3

	calls := 0
	err := c.Run(ctx, func(context.Context, string, *HarvestPayload) error {
		calls++
		return errors.New("downstream unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"1-0"}, stream.acked)
	assert.Empty(t, stream.pending)
}

func TestConsumerAcksMalformedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &fakeStream{
		cancel:  cancel,
		entries: []redis.XMessage{{ID: "1-0", Values: map[string]any{"type": "garbage"}}},
	}

	called := false
	err := newTestConsumer(stream).Run(ctx, func(context.Context, string, *HarvestPayload) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, called)
	assert.Equal(t, []string{"1-0"}, stream.acked)
	assert.Empty(t, stream.pending)
}

func TestConsumerGroupCreateError(t *testing.T) {
	stream := &fakeStream{groupErr: errors.New("NOAUTH Authentication required")}
	c := NewConsumer(stream, "basket", "test-1", slog.Default())

	err := c.Run(context.Background(), func(context.Context, string, *HarvestPayload) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer group")
	assert.Zero(t, stream.readCalls)
}

func TestConsumerExistingGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &fakeStream{groupErr: errors.New("BUSYGROUP Consumer Group name already exists"), cancel: cancel}
	c := NewConsumer(stream, "basket", "test-1", slog.Default())

	err := c.Run(ctx, func(context.Context, string, *HarvestPayload) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"0", ">"}, stream.reads)
}

func TestDecodeMessage(t *testing.T) {
	run := models.NewHarvestRun("walmart", models.DefaultColumns)
	run.RecordCount = 40
	payload := NewHarvestPayload(EventTypeHarvestCompleted, run)

	got, err := DecodeMessage(streamMessage(t, "1-0", payload))
	require.NoError(t, err)
	assert.Equal(t, run.ID.String(), got.RunID)
	assert.Equal(t, 40, got.RecordCount)

	tests := []struct {
		name   string
		values map[string]any
	}{
		{"no data", map[string]any{"type": "HARVEST_COMPLETED"}},
		{"bad json", map[string]any{"data": "{"}},
		{"no run id", map[string]any{"data": `{"profile":"walmart","record_count":3}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}
