package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Dispatcher accepts jobs. accepted is false when an identical job is already
// queued or running.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) (accepted bool, err error)
}

// Inline runs jobs on the caller's goroutine.
type Inline struct {
	handler Handler
}

func NewInline(handler Handler) *Inline {
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	return &Inline{handler: handler}
}

func (d *Inline) Dispatch(ctx context.Context, job Job) (bool, error) {
	return true, d.handler.Handle(ctx, job)
}

// Queued publishes jobs to a queue after taking the job identity lock.
type Queued struct {
	queue   Queue
	lock    Lock
	lockTTL time.Duration
	logger  *logging.Logger
}

// NewQueued creates a queue-backed dispatcher.
func NewQueued(queue Queue, lock Lock, lockTTL time.Duration, logger *logging.Logger) *Queued {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if lock == nil {
		lock = NewMemoryLock()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Queued{queue: queue, lock: lock, lockTTL: lockTTL, logger: logger}
}

func (d *Queued) Dispatch(ctx context.Context, job Job) (bool, error) {
	key := job.Key()
	token, ok, err := d.lock.Acquire(ctx, key, d.lockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		d.logger.Info("duplicate sync job collapsed", "job_key", key, "kind", job.Kind)
		return false, nil
	}

	job.LockToken = token
	job, body, err := encodeJob(job)
	if err != nil {
		_ = d.lock.Release(ctx, key, token)
		return false, err
	}
	if err := d.queue.Send(ctx, body); err != nil {
		_ = d.lock.Release(ctx, key, token)
		return false, fmt.Errorf("dispatch: failed to enqueue job: %w", err)
	}
	d.logger.Debug("sync job enqueued", "job_id", job.ID, "job_key", key, "kind", job.Kind)
	return true, nil
}
