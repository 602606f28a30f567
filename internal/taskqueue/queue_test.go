package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func testQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(rdb, zap.NewNop())
}

func testWorkers(t *testing.T) (*Queue, *Workers, *redis.Client, *fixedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewQueue(rdb, zap.NewNop())
	clk := &fixedClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
	return q, NewWorkers(q, clk, zap.NewNop()), rdb, clk
}

func TestEnqueuePop(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "notify", map[string]string{"subscription_code": "sub-1"}))

	task, err := q.pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "notify", task.Kind)
	assert.NotEmpty(t, task.ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Equal(t, "sub-1", payload["subscription_code"])
}

func TestDelayedPromotion(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.EnqueueAt(ctx, "interim", map[string]string{"cause": "eighty-percent"}, now.Add(time.Minute)))

	// Not yet due.
	require.NoError(t, q.promoteDue(ctx, now))
	task, err := q.pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)

	// Due now.
	require.NoError(t, q.promoteDue(ctx, now.Add(2*time.Minute)))
	task, err = q.pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "interim", task.Kind)
}

func TestFailedTaskRetriesWithBackoff(t *testing.T) {
	q, w, rdb, clk := testWorkers(t)
	ctx := context.Background()

	calls := 0
	w.Register("flaky", func(ctx context.Context, payload json.RawMessage) error {
		calls++
		return errors.New("boom")
	})

	require.NoError(t, q.Enqueue(ctx, "flaky", map[string]string{"subscription_code": "sub-1"}))
	task, err := q.pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	w.Dispatch(ctx, task)
	assert.Equal(t, 1, calls)

	// The failure lands in the delayed set with the attempt recorded and
	// the ID preserved.
	members, err := rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	var requeued Task
	require.NoError(t, json.Unmarshal([]byte(members[0]), &requeued))
	assert.Equal(t, task.ID, requeued.ID)
	assert.Equal(t, 1, requeued.Attempts)

	// Not yet due inside the backoff window; due after it.
	require.NoError(t, q.promoteDue(ctx, clk.now.Add(time.Second)))
	got, err := q.pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, q.promoteDue(ctx, clk.now.Add(time.Minute)))
	got, err = q.pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestFailedTaskDroppedAfterMaxAttempts(t *testing.T) {
	_, w, rdb, _ := testWorkers(t)
	ctx := context.Background()

	w.Register("flaky", func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("boom")
	})
	w.Dispatch(ctx, &Task{ID: "t-1", Kind: "flaky", Payload: json.RawMessage("{}"), Attempts: maxAttempts - 1})

	delayed, err := rdb.ZCard(ctx, delayedKey).Result()
	require.NoError(t, err)
	assert.Zero(t, delayed)
}

func TestPanickingHandlerRetries(t *testing.T) {
	_, w, rdb, _ := testWorkers(t)
	ctx := context.Background()

	w.Register("bad", func(ctx context.Context, payload json.RawMessage) error {
		panic("unreadable payload")
	})
	w.Dispatch(ctx, &Task{ID: "t-1", Kind: "bad", Payload: json.RawMessage("{}")})

	members, err := rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	var requeued Task
	require.NoError(t, json.Unmarshal([]byte(members[0]), &requeued))
	assert.Equal(t, 1, requeued.Attempts)
}
