package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/notify"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

var now = time.Date(2025, 3, 3, 18, 0, 0, 0, time.UTC)

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerts) Send(_ context.Context, a notify.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return true, nil
}

func (r *recordingAlerts) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.alerts {
		out = append(out, a.Key)
	}
	return out
}

type fakeLedger struct {
	last     time.Time
	ok       bool
	failures int
	err      error
	since    time.Time
}

func (f *fakeLedger) LatestSuccessAt(context.Context) (time.Time, bool, error) {
	return f.last, f.ok, f.err
}

func (f *fakeLedger) CountFailuresSince(_ context.Context, since time.Time) (int, error) {
	f.since = since
	return f.failures, nil
}

func newChecker(t *testing.T, ledger Ledger, alerts AlertSender) *Checker {
	t.Helper()
	c, err := NewChecker(Config{
		Ledger: ledger,
		Alerts: alerts,
		Logger: logging.Discard(),
		Now:    func() time.Time { return now },
		Tick:   make(chan time.Time),
	})
	require.NoError(t, err)
	return c
}

func TestCheck_Healthy(t *testing.T) {
	alerts := &recordingAlerts{}
	ledger := &fakeLedger{last: now.Add(-2 * time.Hour), ok: true}
	rep := newChecker(t, ledger, alerts).Check(context.Background())

	assert.True(t, rep.Healthy())
	assert.InDelta(t, 2.0, rep.GapHours, 0.001)
	assert.Empty(t, alerts.keys())
	assert.Equal(t, now.Add(-24*time.Hour), ledger.since)
}

func TestCheck_StaleAlerts(t *testing.T) {
	alerts := &recordingAlerts{}
	rep := newChecker(t, &fakeLedger{last: now.Add(-6 * time.Hour), ok: true}, alerts).Check(context.Background())

	assert.True(t, rep.Stale)
	assert.False(t, rep.Healthy())
	assert.Equal(t, []string{"gap"}, alerts.keys())
	assert.Contains(t, alerts.alerts[0].Body, "6.0 hours")
}

func TestCheck_NeverSucceededIsNotStale(t *testing.T) {
	alerts := &recordingAlerts{}
	rep := newChecker(t, &fakeLedger{}, alerts).Check(context.Background())

	assert.False(t, rep.Stale)
	assert.Nil(t, rep.LastSuccess)
	assert.Empty(t, alerts.keys())
}

func TestCheck_RecentFailuresAlert(t *testing.T) {
	alerts := &recordingAlerts{}
	rep := newChecker(t, &fakeLedger{last: now, ok: true, failures: 3}, alerts).Check(context.Background())

	assert.Equal(t, 3, rep.RecentFailures)
	assert.Equal(t, []string{"failures"}, alerts.keys())
}

func TestCheck_LedgerErrorAlerts(t *testing.T) {
	alerts := &recordingAlerts{}
	rep := newChecker(t, &fakeLedger{err: errors.New("connection refused")}, alerts).Check(context.Background())

	assert.Contains(t, rep.Error, "connection refused")
	assert.Equal(t, []string{"check_error"}, alerts.keys())
}

func TestCheck_MemoryLedger(t *testing.T) {
	ledger := store.NewMemoryAttemptStore()
	clock := now.Add(-time.Hour)
	ledger.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	id, err := ledger.Start(ctx, store.AttemptMeta{SourceID: "sheet-1", Tab: "도수"})
	require.NoError(t, err)
	require.NoError(t, ledger.Complete(ctx, id, store.AttemptResult{}))
	id, err = ledger.Start(ctx, store.AttemptMeta{SourceID: "sheet-1", Tab: "RF"})
	require.NoError(t, err)
	require.NoError(t, ledger.Complete(ctx, id, store.AttemptResult{Err: errors.New("fetch failed")}))

	alerts := &recordingAlerts{}
	rep := newChecker(t, ledger, alerts).Check(ctx)
	require.NotNil(t, rep.LastSuccess)
	assert.Equal(t, 1, rep.RecentFailures)
	assert.Equal(t, []string{"failures"}, alerts.keys())
}

func TestStart_ChecksImmediatelyAndOnTick(t *testing.T) {
	alerts := &recordingAlerts{}
	tick := make(chan time.Time)
	stopped := make(chan struct{})
	c, err := NewChecker(Config{
		Ledger: &fakeLedger{last: now.Add(-6 * time.Hour), ok: true},
		Alerts: alerts,
		Logger: logging.Discard(),
		Now:    func() time.Time { return now },
		Tick:   tick,
		Stop:   func() { close(stopped) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(alerts.keys()) == 1 }, time.Second, 5*time.Millisecond)
	tick <- now
	require.Eventually(t, func() bool { return len(alerts.keys()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	<-stopped
}

func TestNewChecker_RequiresLedger(t *testing.T) {
	_, err := NewChecker(Config{})
	assert.Error(t, err)
}
