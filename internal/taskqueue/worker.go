package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/smallbiznis/trunkgate/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler processes one task payload. It must be idempotent.
type Handler func(ctx context.Context, payload json.RawMessage) error

// maxAttempts bounds redeliveries of a failing task.
const maxAttempts = 5

// Workers runs a pool of goroutines draining the queue plus one loop
// promoting due delayed tasks.
type Workers struct {
	queue    *Queue
	clock    clock.Clock
	log      *zap.Logger
	size     int
	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	done   sync.WaitGroup
}

func NewWorkers(queue *Queue, clk clock.Clock, log *zap.Logger) *Workers {
	return &Workers{
		queue:    queue,
		clock:    clk,
		log:      log.Named("taskqueue.workers"),
		size:     8,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a task kind. Later registrations for the
// same kind replace earlier ones.
func (w *Workers) Register(kind string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

func (w *Workers) handler(kind string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[kind]
	return h, ok
}

func (w *Workers) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < w.size; i++ {
		w.done.Add(1)
		go func() {
			defer w.done.Done()
			w.drain(ctx)
		}()
	}

	w.done.Add(1)
	go func() {
		defer w.done.Done()
		w.promote(ctx)
	}()
}

func (w *Workers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.done.Wait()
}

func (w *Workers) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, err := w.queue.pop(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		w.Dispatch(ctx, task)
	}
}

// Dispatch runs one task through its handler, recovering from panics so
// a bad payload never kills a worker. A failed task goes back to the
// delayed set with exponential backoff until maxAttempts is reached.
func (w *Workers) Dispatch(ctx context.Context, task *Task) {
	h, ok := w.handler(task.Kind)
	if !ok {
		w.log.Error("no handler for task kind", zap.String("kind", task.Kind))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("task handler panicked",
				zap.String("kind", task.Kind),
				zap.String("task_id", task.ID),
				zap.Any("panic", r),
			)
			w.retry(ctx, task)
		}
	}()
	if err := h(ctx, task.Payload); err != nil {
		w.log.Error("task failed",
			zap.String("kind", task.Kind),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		w.retry(ctx, task)
	}
}

func (w *Workers) retry(ctx context.Context, task *Task) {
	task.Attempts++
	if task.Attempts >= maxAttempts {
		w.log.Error("task dropped after too many attempts",
			zap.String("kind", task.Kind),
			zap.String("task_id", task.ID),
			zap.Int("attempts", task.Attempts),
		)
		return
	}
	eta := w.clock.Now().Add(time.Duration(1<<task.Attempts) * time.Second)
	if err := w.queue.requeue(ctx, task, eta); err != nil {
		w.log.Error("task requeue failed",
			zap.String("kind", task.Kind),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (w *Workers) promote(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.promoteDue(ctx, w.clock.Now()); err != nil {
				w.log.Warn("promote delayed tasks failed", zap.Error(err))
			}
		}
	}
}

var Module = fx.Module("taskqueue",
	fx.Provide(NewQueue),
	fx.Provide(NewWorkers),
	fx.Invoke(func(lc fx.Lifecycle, w *Workers) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { w.Start(); return nil },
			OnStop:  func(context.Context) error { w.Stop(); return nil },
		})
	}),
)
