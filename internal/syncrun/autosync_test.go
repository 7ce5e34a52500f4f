package syncrun

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) SyncAll(context.Context, *Runtime, []TabConfig) (*Summary, error) {
	s.calls.Add(1)
	return &Summary{}, nil
}

func TestAutoSync_SkipsWhileLatchHeld(t *testing.T) {
	syncer := &countingSyncer{}
	rt := NewRuntime(nil)
	auto, err := NewAutoSync(AutoSyncConfig{
		Syncer:  syncer,
		Runtime: rt,
		Tabs:    []TabConfig{manualConfig()},
		Logger:  logging.Discard(),
		Tick:    make(chan time.Time),
	})
	require.NoError(t, err)

	require.True(t, rt.TryBegin())
	ran, err := auto.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, int32(0), syncer.calls.Load())

	rt.End()
	ran, err = auto.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, rt.Running())
}

func TestAutoSync_StartRunsImmediatelyThenOnTick(t *testing.T) {
	syncer := &countingSyncer{}
	tick := make(chan time.Time)
	stopped := make(chan struct{})
	auto, err := NewAutoSync(AutoSyncConfig{
		Syncer:  syncer,
		Runtime: NewRuntime(nil),
		Tabs:    []TabConfig{manualConfig()},
		Logger:  logging.Discard(),
		Tick:    tick,
		Stop:    func() { close(stopped) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		auto.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	tick <- time.Now()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	<-stopped
}

func TestNewAutoSync_Validates(t *testing.T) {
	_, err := NewAutoSync(AutoSyncConfig{Runtime: NewRuntime(nil), Tabs: []TabConfig{manualConfig()}})
	assert.Error(t, err)
	_, err = NewAutoSync(AutoSyncConfig{Syncer: &countingSyncer{}, Runtime: NewRuntime(nil)})
	assert.Error(t, err)
}
