package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

const (
	defaultWaitSeconds   = 2
	maxWaitSeconds       = 20
	deleteTimeoutSeconds = 5
)

// Worker is the single queue consumer. Jobs run one at a time.
type Worker struct {
	queue   Queue
	lock    Lock
	handler Handler
	logger  *logging.Logger

	waitSeconds int
	wg          sync.WaitGroup
}

// NewWorker creates a consumer. lock must be the dispatcher's lock so a run
// releases the identity it was queued under.
func NewWorker(queue Queue, lock Lock, handler Handler, waitSeconds int, logger *logging.Logger) *Worker {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	if lock == nil {
		lock = NewMemoryLock()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if waitSeconds <= 0 {
		waitSeconds = defaultWaitSeconds
	}
	if waitSeconds > maxWaitSeconds {
		waitSeconds = maxWaitSeconds
	}
	return &Worker{queue: queue, lock: lock, handler: handler, logger: logger, waitSeconds: waitSeconds}
}

// Start launches the consumer goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the consumer exits.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Debug("sync worker started")

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("sync worker stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, 1, w.waitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive sync jobs", "error", err)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode sync job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing job", "job_id", job.ID, "kind", job.Kind, "tab", job.Tab.Tab)
	if err := w.handler.Handle(ctx, job); err != nil {
		w.logger.Error("sync job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
	}

	if err := w.lock.Release(context.Background(), job.Key(), job.LockToken); err != nil {
		w.logger.Warn("failed to release job lock", "job_key", job.Key(), "error", err)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete sync job", "error", err)
	}
}
