// Package dispatch hands sync jobs to the orchestrator either inline or
// through a queue with one consumer, collapsing duplicate jobs per tab.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
)

// Queue is the transport between producers and the worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// JobKind selects what the worker runs.
type JobKind string

const (
	JobSyncTab   JobKind = "sync_tab"
	JobWriteBack JobKind = "write_back"
	JobSyncAll   JobKind = "sync_all"
)

// Job is the queued unit of work.
type Job struct {
	ID         string            `json:"id"`
	Kind       JobKind           `json:"kind"`
	Tab        syncrun.TabConfig `json:"tab,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	// LockToken releases the job identity once the job has run.
	LockToken string `json:"lock_token,omitempty"`
}

// Key is the job identity used for duplicate suppression.
func (j Job) Key() string {
	switch j.Kind {
	case JobSyncAll:
		return string(JobSyncAll)
	case JobWriteBack:
		return string(JobWriteBack) + ":" + j.Tab.JobKey()
	default:
		return j.Tab.JobKey()
	}
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("dispatch: failed to encode job: %w", err)
	}
	return job, string(body), nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("dispatch: failed to decode job: %w", err)
	}
	if job.Kind == "" {
		return Job{}, fmt.Errorf("dispatch: job %s has no kind", job.ID)
	}
	return job, nil
}
