package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type fakeRunner struct {
	tabs     []syncrun.TabConfig
	sweeps   int
	writes   int
	sawLatch bool
}

func (f *fakeRunner) SyncTab(_ context.Context, tab syncrun.TabConfig) (*syncrun.TabReport, error) {
	f.tabs = append(f.tabs, tab)
	return &syncrun.TabReport{Tab: tab.Tab}, nil
}

func (f *fakeRunner) SyncAll(_ context.Context, rt *syncrun.Runtime, tabs []syncrun.TabConfig) (*syncrun.Summary, error) {
	f.sweeps++
	f.sawLatch = rt.Running()
	return &syncrun.Summary{}, nil
}

func (f *fakeRunner) Run(context.Context, syncrun.TabConfig) ([]store.WriteBack, error) {
	f.writes++
	return nil, nil
}

func TestSyncHandler_RoutesJobs(t *testing.T) {
	runner := &fakeRunner{}
	rt := syncrun.NewRuntime(nil)
	h := &SyncHandler{Tabs: runner, All: runner, WriteBack: runner, Runtime: rt, Configured: []syncrun.TabConfig{testTab}, Logger: logging.Discard()}
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, Job{Kind: JobSyncTab, Tab: testTab}))
	require.NoError(t, h.Handle(ctx, Job{Kind: JobWriteBack, Tab: testTab}))
	require.NoError(t, h.Handle(ctx, Job{Kind: JobSyncAll}))

	assert.Equal(t, []syncrun.TabConfig{testTab}, runner.tabs)
	assert.Equal(t, 1, runner.writes)
	assert.Equal(t, 1, runner.sweeps)
	assert.True(t, runner.sawLatch)
	assert.False(t, rt.Running())

	assert.Error(t, h.Handle(ctx, Job{Kind: "bogus"}))
}

func TestSyncHandler_SweepSkippedWhileLatchHeld(t *testing.T) {
	runner := &fakeRunner{}
	rt := syncrun.NewRuntime(nil)
	require.True(t, rt.TryBegin())
	h := &SyncHandler{All: runner, Runtime: rt, Logger: logging.Discard()}

	require.NoError(t, h.Handle(context.Background(), Job{Kind: JobSyncAll}))
	assert.Equal(t, 0, runner.sweeps)
}

func TestSyncHandler_WriteBackNotConfigured(t *testing.T) {
	h := &SyncHandler{Runtime: syncrun.NewRuntime(nil), Logger: logging.Discard()}
	assert.ErrorIs(t, h.Handle(context.Background(), Job{Kind: JobWriteBack, Tab: testTab}), errNoWriteBack)
}
