package bootstrap

import (
	"errors"

	appconfig "github.com/wolfman30/clinic-sheet-sync/internal/config"
	"github.com/wolfman30/clinic-sheet-sync/internal/dispatch"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

const memoryQueueBuffer = 64

// Dispatch is the server-side job path: a queued dispatcher and the single
// worker draining it.
type Dispatch struct {
	Dispatcher dispatch.Dispatcher
	Worker     *dispatch.Worker
	Queue      dispatch.Queue
}

// BuildDispatch picks the in-process queue or SQS. sqsClient is only used
// when a queue URL is configured.
func BuildDispatch(cfg *appconfig.Config, handler dispatch.Handler, sqsClient dispatch.SQSAPI, lock dispatch.Lock, logger *logging.Logger) (*Dispatch, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if handler == nil {
		return nil, errors.New("bootstrap: job handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if lock == nil {
		lock = dispatch.NewMemoryLock()
	}

	var queue dispatch.Queue
	switch {
	case cfg.UseMemoryQueue || cfg.SyncQueueURL == "":
		logger.Info("using in-process sync queue")
		queue = dispatch.NewMemoryQueue(memoryQueueBuffer)
	case sqsClient == nil:
		return nil, errors.New("bootstrap: SYNC_QUEUE_URL set without an SQS client")
	default:
		logger.Info("using SQS sync queue", "queue_url", cfg.SyncQueueURL)
		queue = dispatch.NewSQSQueue(sqsClient, cfg.SyncQueueURL)
	}

	return &Dispatch{
		Dispatcher: dispatch.NewQueued(queue, lock, cfg.JobLockTTL, logger),
		Worker:     dispatch.NewWorker(queue, lock, handler, cfg.WorkerWaitSeconds, logger),
		Queue:      queue,
	}, nil
}
