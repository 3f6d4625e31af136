package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(eventID string) *Event {
	return &Event{EventID: eventID, EventType: "user.logged_out", AggregateID: "acct-1"}
}

// ---- MemoryIdempotencyStore ----

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "evt-1"))
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryIdempotencyStore_ExpiryAndSweep(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "old"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Add(ctx, "fresh"))

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	ok, _ := s.Contains(ctx, "fresh")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = s.Contains(ctx, "fresh")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, "evt")
			_, _ = s.Contains(ctx, "evt")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}

// ---- IdempotentHandler ----

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	before := testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues("user.logged_out"))

	require.NoError(t, h(context.Background(), testEvent("evt-1")))
	require.NoError(t, h(context.Background(), testEvent("evt-1")))

	assert.Equal(t, 1, calls)
	assert.Equal(t, before+1, testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues("user.logged_out")))
}

func TestIdempotentHandler_EmptyEventIDPassesThrough(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), testEvent("")))
	require.NoError(t, h(context.Background(), testEvent("")))
	assert.Equal(t, 2, calls)
	assert.Zero(t, store.Len())
}

func TestIdempotentHandler_HandlerErrorDoesNotRecord(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	fail := true
	calls := 0
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	require.Error(t, h(context.Background(), testEvent("evt-2")))
	fail = false
	require.NoError(t, h(context.Background(), testEvent("evt-2")))
	assert.Equal(t, 2, calls)
}

type failingIdempotencyStore struct{}

func (failingIdempotencyStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func (failingIdempotencyStore) Add(context.Context, string) error {
	return errors.New("store down")
}

func TestIdempotentHandler_StoreErrorProcessesAnyway(t *testing.T) {
	calls := 0
	h := IdempotentHandler(failingIdempotencyStore{}, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), testEvent("evt-3")))
	assert.Equal(t, 1, calls)
}
