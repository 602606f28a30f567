// Package taskqueue is a redis-backed at-least-once task queue with
// support for delayed tasks. Handlers must be idempotent: a task may be
// delivered more than once.
package taskqueue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readyKey   = "tq:ready"
	delayedKey = "tq:delayed"
)

type Task struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts,omitempty"`
}

type Queue struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewQueue(rdb *redis.Client, log *zap.Logger) *Queue {
	return &Queue{rdb: rdb, log: log.Named("taskqueue")}
}

// Enqueue pushes a task for immediate processing.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) error {
	body, err := encode(kind, payload)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, readyKey, body).Err()
}

// EnqueueAt schedules a task to become ready at eta.
func (q *Queue) EnqueueAt(ctx context.Context, kind string, payload any, eta time.Time) error {
	body, err := encode(kind, payload)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(eta.UnixMilli()),
		Member: body,
	}).Err()
}

// requeue schedules an already-delivered task for another attempt,
// keeping its ID and attempt count.
func (q *Queue) requeue(ctx context.Context, task *Task, eta time.Time) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(eta.UnixMilli()),
		Member: string(body),
	}).Err()
}

// promoteDue moves delayed tasks whose eta has passed onto the ready list.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) error {
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatMilli(now),
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another worker claimed it
		}
		if err := q.rdb.LPush(ctx, readyKey, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

// pop blocks for up to timeout waiting for a ready task.
func (q *Queue) pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.rdb.BRPop(ctx, timeout, readyKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		q.log.Error("dropping undecodable task", zap.Error(err))
		return nil, nil
	}
	return &task, nil
}

func encode(kind string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(Task{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: raw,
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func formatMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
