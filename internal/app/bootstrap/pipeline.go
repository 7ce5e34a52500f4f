package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appconfig "github.com/wolfman30/clinic-sheet-sync/internal/config"
	"github.com/wolfman30/clinic-sheet-sync/internal/dispatch"
	"github.com/wolfman30/clinic-sheet-sync/internal/emrexport"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/observability/metrics"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/sheets"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Write-back modes.
const (
	WriteBackLog    = "log"
	WriteBackSheets = "sheets"
)

// Source is a grid source that can also take cell writes.
type Source interface {
	syncrun.GridSource
	syncrun.CellWriter
}

// Pipeline is the wired sync stack for one process.
type Pipeline struct {
	Runtime      *syncrun.Runtime
	Source       Source
	Orchestrator *syncrun.Orchestrator
	WriteBacker  *syncrun.WriteBacker
	Handler      *dispatch.SyncHandler
}

// PipelineConfig carries the pieces BuildPipeline does not construct.
type PipelineConfig struct {
	App     *appconfig.Config
	Stores  *Stores
	Tabs    []syncrun.TabConfig
	Logger  *logging.Logger
	Metrics *metrics.SyncMetrics
	// Source overrides the source picked from App.
	Source Source
}

// BuildPipeline wires runtime, source, orchestrator, write-back and the job
// handler. Local workbooks win over Sheets when XLSXDir is set.
func BuildPipeline(ctx context.Context, cfg PipelineConfig) (*Pipeline, error) {
	if cfg.App == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if cfg.Stores == nil {
		return nil, errors.New("bootstrap: stores required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	rt, source, err := buildSource(ctx, cfg.App, cfg.Source, logger)
	if err != nil {
		return nil, err
	}

	orch, err := syncrun.NewOrchestrator(syncrun.Config{
		Source:     source,
		Ledger:     cfg.Stores.Ledger,
		Identity:   cfg.Stores.Identity,
		Repos:      cfg.Stores.SyncRepos(),
		Logger:     logger,
		Metrics:    cfg.Metrics,
		EchoWindow: cfg.App.EchoWindow,
	})
	if err != nil {
		return nil, err
	}

	writer, err := buildWriter(cfg.App.WriteBackMode, source, logger)
	if err != nil {
		return nil, err
	}
	wb, err := syncrun.NewWriteBacker(syncrun.WriteBackConfig{
		Ledger:          cfg.Stores.Ledger,
		Repos:           cfg.Stores.OverrideRepos(),
		Writer:          writer,
		ClearAfterWrite: cfg.App.WriteBackClear,
		Logger:          logger,
		Metrics:         cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Runtime:      rt,
		Source:       source,
		Orchestrator: orch,
		WriteBacker:  wb,
		Handler: &dispatch.SyncHandler{
			Tabs:       orch,
			All:        orch,
			WriteBack:  wb,
			Runtime:    rt,
			Configured: cfg.Tabs,
			Logger:     logger,
		},
	}, nil
}

func buildSource(ctx context.Context, cfg *appconfig.Config, override Source, logger *logging.Logger) (*syncrun.Runtime, Source, error) {
	if override != nil {
		return syncrun.NewRuntime(nil), override, nil
	}
	if cfg.XLSXDir != "" {
		logger.Info("reading tabs from local workbooks", "dir", cfg.XLSXDir)
		return syncrun.NewRuntime(nil), sheets.NewWorkbooks(cfg.XLSXDir), nil
	}
	if cfg.SheetsCredentials == "" {
		return nil, nil, errors.New("bootstrap: SHEETS_CREDENTIALS_FILE or XLSX_DIR required")
	}
	fetcher, err := sheets.LoadServiceAccountFetcher(cfg.SheetsCredentials, sheets.Scope)
	if err != nil {
		return nil, nil, err
	}
	rt := syncrun.NewRuntime(fetcher)
	client, err := sheets.NewClient(ctx, rt.TokenSource(ctx), logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, client, nil
}

func buildWriter(mode string, source Source, logger *logging.Logger) (syncrun.CellWriter, error) {
	switch mode {
	case "", WriteBackLog:
		return syncrun.LogWriter{Logger: logger}, nil
	case WriteBackSheets:
		return source, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown write-back mode %q", mode)
	}
}

// BuildImporter wires the EMR export importer onto the same stores. archive
// may be nil.
func BuildImporter(stores *Stores, archive emrexport.Archiver, logger *logging.Logger) (*emrexport.Importer, error) {
	if stores == nil {
		return nil, errors.New("bootstrap: stores required")
	}
	return emrexport.NewImporter(emrexport.Config{
		Ledger:       stores.Ledger,
		Appointments: stores.Records[grid.KindOutpatient],
		Directory:    stores.Identity,
		Registry:     patient.NewRegistry(stores.Identity, logger),
		Archive:      archive,
		Logger:       logger,
	})
}
