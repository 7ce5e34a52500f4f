package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// TabSyncer runs one tab.
type TabSyncer interface {
	SyncTab(ctx context.Context, tab syncrun.TabConfig) (*syncrun.TabReport, error)
}

// WriteBackRunner runs write-back for one tab.
type WriteBackRunner interface {
	Run(ctx context.Context, tab syncrun.TabConfig) ([]store.WriteBack, error)
}

// SyncHandler maps jobs onto the orchestrator and write-back runner.
type SyncHandler struct {
	Tabs      TabSyncer
	All       syncrun.Syncer
	WriteBack WriteBackRunner
	Runtime   *syncrun.Runtime
	// Configured is the tab list a sync_all job sweeps.
	Configured []syncrun.TabConfig
	Logger     *logging.Logger
}

var errNoWriteBack = errors.New("dispatch: write-back not configured")

func (h *SyncHandler) Handle(ctx context.Context, job Job) error {
	logger := h.Logger
	if logger == nil {
		logger = logging.Default()
	}

	switch job.Kind {
	case JobSyncTab:
		if err := h.Runtime.EnsureFresh(ctx); err != nil {
			return fmt.Errorf("dispatch: refresh credentials: %w", err)
		}
		rep, err := h.Tabs.SyncTab(ctx, job.Tab)
		if err != nil {
			return err
		}
		logger.Info("sync job finished", "job_id", job.ID, "tab", job.Tab.Tab, "processed", rep.Stats.Processed, "unchanged", rep.Stats.Unchanged)
		return nil
	case JobWriteBack:
		if h.WriteBack == nil {
			return errNoWriteBack
		}
		if err := h.Runtime.EnsureFresh(ctx); err != nil {
			return fmt.Errorf("dispatch: refresh credentials: %w", err)
		}
		entries, err := h.WriteBack.Run(ctx, job.Tab)
		if err != nil {
			return err
		}
		logger.Info("write-back job finished", "job_id", job.ID, "tab", job.Tab.Tab, "cells", len(entries))
		return nil
	case JobSyncAll:
		if !h.Runtime.TryBegin() {
			logger.Info("sweep already running, dropping job", "job_id", job.ID)
			return nil
		}
		defer h.Runtime.End()
		summary, err := h.All.SyncAll(ctx, h.Runtime, h.Configured)
		if summary != nil {
			logger.Info("sweep job finished", "job_id", job.ID, "tabs", len(summary.Reports), "failed_tabs", summary.FailedTabs)
		}
		return err
	default:
		return fmt.Errorf("dispatch: unknown job kind %q", job.Kind)
	}
}
