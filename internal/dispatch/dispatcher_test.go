package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type recordingHandler struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, job Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

var testTab = syncrun.TabConfig{SourceID: "sheet-1", Tab: "도수 2025", Kind: grid.KindManual}

func TestQueued_CollapsesDuplicateTabJobs(t *testing.T) {
	queue := NewMemoryQueue(4)
	d := NewQueued(queue, NewMemoryLock(), time.Minute, logging.Discard())
	ctx := context.Background()

	ok, err := d.Dispatch(ctx, Job{Kind: JobSyncTab, Tab: testTab})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Dispatch(ctx, Job{Kind: JobSyncTab, Tab: testTab})
	require.NoError(t, err)
	assert.False(t, ok)

	other := testTab
	other.Tab = "RF 2025"
	ok, err = d.Dispatch(ctx, Job{Kind: JobSyncTab, Tab: other})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Dispatch(ctx, Job{Kind: JobWriteBack, Tab: testTab})
	require.NoError(t, err)
	assert.True(t, ok, "write-back has its own identity")

	assert.Equal(t, 3, queue.Len())
}

type failingQueue struct{ MemoryQueue }

func (failingQueue) Send(context.Context, string) error { return errors.New("queue down") }

func TestQueued_SendFailureReleasesLock(t *testing.T) {
	lock := NewMemoryLock()
	d := NewQueued(&failingQueue{}, lock, time.Minute, logging.Discard())

	_, err := d.Dispatch(context.Background(), Job{Kind: JobSyncTab, Tab: testTab})
	require.Error(t, err)

	_, ok, err := lock.Acquire(context.Background(), testTab.JobKey(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWorker_RunsJobsAndReleasesIdentity(t *testing.T) {
	queue := NewMemoryQueue(4)
	lock := NewMemoryLock()
	handler := &recordingHandler{err: errors.New("boom")}
	d := NewQueued(queue, lock, time.Minute, logging.Discard())

	ok, err := d.Dispatch(context.Background(), Job{Kind: JobSyncTab, Tab: testTab})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(queue, lock, handler, 1, logging.Discard())
	w.Start(ctx)

	require.Eventually(t, func() bool { return handler.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		ok, err := d.Dispatch(context.Background(), Job{Kind: JobSyncTab, Tab: testTab})
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return handler.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	w.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, testTab, handler.jobs[0].Tab)
	assert.NotEmpty(t, handler.jobs[0].LockToken)
}

func TestWorker_DropsUndecodableMessages(t *testing.T) {
	queue := NewMemoryQueue(4)
	handler := &recordingHandler{}
	require.NoError(t, queue.Send(context.Background(), "not json"))
	require.NoError(t, queue.Send(context.Background(), `{"id":"x"}`))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(queue, nil, handler, 1, logging.Discard())
	w.Start(ctx)
	require.Eventually(t, func() bool { return queue.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()
	assert.Equal(t, 0, handler.count())
}

func TestInline_RunsOnCaller(t *testing.T) {
	handler := &recordingHandler{}
	ok, err := NewInline(handler).Dispatch(context.Background(), Job{Kind: JobSyncAll})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, handler.count())
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "sheet-1/도수 2025", Job{Kind: JobSyncTab, Tab: testTab}.Key())
	assert.Equal(t, "write_back:sheet-1/도수 2025", Job{Kind: JobWriteBack, Tab: testTab}.Key())
	assert.Equal(t, "sync_all", Job{Kind: JobSyncAll, Tab: testTab}.Key())
}
