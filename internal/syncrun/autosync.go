package syncrun

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Syncer runs a full sweep over tabs.
type Syncer interface {
	SyncAll(ctx context.Context, rt *Runtime, tabs []TabConfig) (*Summary, error)
}

// AutoSyncConfig wires the periodic sweep.
type AutoSyncConfig struct {
	Syncer   Syncer
	Runtime  *Runtime
	Tabs     []TabConfig
	Interval time.Duration
	Logger   *logging.Logger

	Tick <-chan time.Time
	Stop func()
}

// AutoSync triggers SyncAll on a timer. Overlapping fires are dropped.
type AutoSync struct {
	syncer  Syncer
	runtime *Runtime
	tabs    []TabConfig
	logger  *logging.Logger

	tick <-chan time.Time
	stop func()
}

func NewAutoSync(cfg AutoSyncConfig) (*AutoSync, error) {
	if cfg.Syncer == nil {
		return nil, errors.New("syncrun: auto sync requires syncer")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("syncrun: auto sync requires runtime")
	}
	if len(cfg.Tabs) == 0 {
		return nil, errors.New("syncrun: auto sync requires tabs")
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &AutoSync{
		syncer:  cfg.Syncer,
		runtime: cfg.Runtime,
		tabs:    cfg.Tabs,
		logger:  logger,
		tick:    tick,
		stop:    stop,
	}, nil
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (a *AutoSync) Start(ctx context.Context) {
	if a == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if a.stop != nil {
			a.stop()
		}
	}()

	_, _ = a.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.tick:
			_, _ = a.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep unless another holds the latch. ran is false when
// the sweep was skipped.
func (a *AutoSync) SweepOnce(ctx context.Context) (ran bool, err error) {
	if !a.runtime.TryBegin() {
		a.logger.Info("auto sync already running, skipping tick")
		return false, nil
	}
	defer a.runtime.End()

	summary, err := a.syncer.SyncAll(ctx, a.runtime, a.tabs)
	if err != nil {
		a.logger.Error("auto sync sweep failed", "error", err)
	}
	if summary != nil {
		a.logger.Info("auto sync sweep finished", "tabs", len(summary.Reports), "failed_tabs", summary.FailedTabs)
	}
	return true, err
}
