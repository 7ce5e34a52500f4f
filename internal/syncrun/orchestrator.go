// Package syncrun drives sync attempts for configured sheet tabs and keeps the
// ledger of what each attempt did.
package syncrun

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/fingerprint"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/observability/metrics"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/reconcile"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.syncrun")

// DefaultEchoWindow bounds how long a write-back entry suppresses drift.
const DefaultEchoWindow = 30 * time.Minute

// GridSource fetches one tab of a spreadsheet.
type GridSource interface {
	FetchTab(ctx context.Context, sourceID, tab string) (grid.RawGrid, error)
}

// AttemptLedger records sync attempts.
type AttemptLedger interface {
	Start(ctx context.Context, meta store.AttemptMeta) (uuid.UUID, error)
	Complete(ctx context.Context, id uuid.UUID, res store.AttemptResult) error
	LastSuccessful(ctx context.Context, sourceID, tab string) (*store.LastRun, error)
	RecentWrites(ctx context.Context, sourceID, tab string, since time.Time) ([]store.WriteBack, error)
}

// Identity is the identity repository the orchestrator reads per run.
type Identity interface {
	patient.Directory
	ResourceIDs(ctx context.Context, kind grid.Kind) (map[string]uuid.UUID, error)
}

// TabConfig describes one (source, tab) pair to sync.
type TabConfig struct {
	SourceID string    `yaml:"source_id"`
	Tab      string    `yaml:"tab"`
	Kind     grid.Kind `yaml:"kind"`
	Year     int       `yaml:"year"`
	// Layout is filled from Kind and Year when nil.
	Layout *grid.Layout `yaml:"-"`
}

// JobKey is the logical identity of a sync for queue dedup.
func (t TabConfig) JobKey() string {
	return t.SourceID + "/" + t.Tab
}

func (t TabConfig) layout(now time.Time) grid.Layout {
	if t.Layout != nil {
		l := *t.Layout
		if l.RunDate.IsZero() {
			l.RunDate = now
		}
		return l
	}
	year := t.Year
	if y, ok := grid.TabYear(t.Tab); ok {
		year = y
	}
	if year == 0 {
		year = now.Year()
	}
	return grid.Layout{Kind: t.Kind, Year: year, RunDate: now}
}

// Config wires an Orchestrator.
type Config struct {
	Source     GridSource
	Ledger     AttemptLedger
	Identity   Identity
	Repos      map[grid.Kind]reconcile.Repository
	Decoder    *decode.Decoder
	Logger     *logging.Logger
	Metrics    *metrics.SyncMetrics
	EchoWindow time.Duration
	Now        func() time.Time
}

// Orchestrator runs the fetch, scan, decode, fingerprint and reconcile
// pipeline for one tab at a time.
type Orchestrator struct {
	source     GridSource
	ledger     AttemptLedger
	identity   Identity
	repos      map[grid.Kind]reconcile.Repository
	decoder    *decode.Decoder
	logger     *logging.Logger
	metrics    *metrics.SyncMetrics
	echoWindow time.Duration
	now        func() time.Time
}

// NewOrchestrator validates cfg and applies defaults.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, errors.New("syncrun: grid source required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("syncrun: attempt ledger required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("syncrun: identity repository required")
	}
	if len(cfg.Repos) == 0 {
		return nil, errors.New("syncrun: record repositories required")
	}
	o := &Orchestrator{
		source:     cfg.Source,
		ledger:     cfg.Ledger,
		identity:   cfg.Identity,
		repos:      cfg.Repos,
		decoder:    cfg.Decoder,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		echoWindow: cfg.EchoWindow,
		now:        cfg.Now,
	}
	if o.decoder == nil {
		o.decoder = decode.NewDecoder(decode.Options{})
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.echoWindow <= 0 {
		o.echoWindow = DefaultEchoWindow
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	return o, nil
}

// TabReport is the outcome of one SyncTab call.
type TabReport struct {
	AttemptID   uuid.UUID
	SourceID    string
	Tab         string
	Kind        grid.Kind
	Stats       store.RunStats
	Fingerprint string
	Patients    patient.Stats
}

// SyncTab runs one attempt. Cell errors and per-record failures are reported
// in the stats; the returned error means the attempt itself failed, and it has
// already been persisted on the attempt row.
func (o *Orchestrator) SyncTab(ctx context.Context, tab TabConfig) (*TabReport, error) {
	ctx, span := tracer.Start(ctx, "syncrun.sync_tab")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.sync.source_id", tab.SourceID),
		attribute.String("clinic.sync.tab", tab.Tab),
		attribute.String("clinic.sync.kind", string(tab.Kind)),
	)

	started := o.now().Truncate(time.Microsecond)
	logger := o.logger.WithRun(tab.SourceID, tab.Tab, string(tab.Kind))

	attemptID, err := o.ledger.Start(ctx, store.AttemptMeta{SourceID: tab.SourceID, Tab: tab.Tab, Kind: tab.Kind})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("syncrun: start attempt: %w", err)
	}
	report := &TabReport{AttemptID: attemptID, SourceID: tab.SourceID, Tab: tab.Tab, Kind: tab.Kind}

	fail := func(err error) (*TabReport, error) {
		span.RecordError(err)
		logger.Error("sync attempt failed", "attempt_id", attemptID, "error", err)
		if cerr := o.ledger.Complete(ctx, attemptID, store.AttemptResult{Stats: report.Stats, Err: err}); cerr != nil {
			logger.Error("failed to persist attempt error", "attempt_id", attemptID, "error", cerr)
		}
		o.metrics.ObserveRun(string(tab.Kind), "failed", o.now().Sub(started).Seconds())
		return report, err
	}

	repo, ok := o.repos[tab.Kind]
	if !ok {
		return fail(fmt.Errorf("syncrun: no repository for kind %q", tab.Kind))
	}
	scanner, err := grid.NewScanner(tab.layout(started))
	if err != nil {
		return fail(fmt.Errorf("syncrun: layout: %w", err))
	}

	raw, err := o.source.FetchTab(ctx, tab.SourceID, tab.Tab)
	if err != nil {
		return fail(fmt.Errorf("syncrun: fetch tab %q: %w", tab.Tab, err))
	}

	batch := decode.Walk(raw, scanner.Scan(raw), tab.Kind, tab.Tab, o.decoder)
	report.Fingerprint = fingerprint.Of(batch)
	report.Stats = batchStats(batch)
	o.metrics.ObserveCellErrors(string(tab.Kind), len(batch.Errors))
	span.SetAttributes(attribute.Int("clinic.sync.records", len(batch.Records)))

	last, err := o.ledger.LastSuccessful(ctx, tab.SourceID, tab.Tab)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail(fmt.Errorf("syncrun: last successful attempt: %w", err))
	}
	if last != nil && last.Fingerprint != "" && last.Fingerprint == report.Fingerprint {
		report.Stats.Processed = len(batch.Records)
		report.Stats.Skipped = len(batch.Records)
		report.Stats.Unchanged = true
		logger.Info("tab unchanged since last sync", "fingerprint", report.Fingerprint, "records", len(batch.Records))
		return o.complete(ctx, report, started, "unchanged")
	}

	resources, err := o.identity.ResourceIDs(ctx, tab.Kind)
	if err != nil {
		return fail(fmt.Errorf("syncrun: load resources: %w", err))
	}
	echoes, err := o.echoes(ctx, tab, started)
	if err != nil {
		return fail(err)
	}

	resolver := patient.NewResolver(o.identity, logger)
	engine := reconcile.NewEngine(repo, resolver, logger)
	rep, err := engine.Apply(ctx, batch.Records, started, reconcile.Options{
		Tab:       tab.Tab,
		Source:    store.SourceSheet,
		Resources: resources,
		Echoes:    echoes,
		Sweep:     tab.Kind == grid.KindOutpatient,
	})
	applyReconcile(&report.Stats, rep)
	report.Patients = resolver.Stats()
	if err != nil {
		return fail(err)
	}

	for outcome, n := range map[string]int{
		"created": rep.Stats.Created, "updated": rep.Stats.Updated,
		"skipped": rep.Stats.Skipped, "failed": rep.Stats.Failed, "cancelled": rep.Stats.Cancelled,
	} {
		o.metrics.ObserveRecords(string(tab.Kind), outcome, n)
	}
	logger.Info("tab synced",
		"processed", report.Stats.Processed,
		"created", report.Stats.Created,
		"updated", report.Stats.Updated,
		"skipped", report.Stats.Skipped,
		"failed", report.Stats.Failed,
		"cancelled", report.Stats.Cancelled,
		"cell_errors", len(report.Stats.CellErrors),
		"patients_resolved", report.Patients.Resolved,
		"patients_unresolved", report.Patients.Unresolved,
	)
	return o.complete(ctx, report, started, "succeeded")
}

func (o *Orchestrator) complete(ctx context.Context, report *TabReport, started time.Time, result string) (*TabReport, error) {
	// A run with failed records must not short-circuit the next one.
	fp := report.Fingerprint
	if report.Stats.Failed > 0 {
		fp = ""
	}
	err := o.ledger.Complete(ctx, report.AttemptID, store.AttemptResult{Stats: report.Stats, Fingerprint: fp})
	if err != nil {
		return report, fmt.Errorf("syncrun: complete attempt: %w", err)
	}
	o.metrics.ObserveRun(string(report.Kind), result, o.now().Sub(started).Seconds())
	o.metrics.SetLastSuccess(string(report.Kind), float64(o.now().Unix()))
	return report, nil
}

func (o *Orchestrator) echoes(ctx context.Context, tab TabConfig, now time.Time) (map[string]string, error) {
	writes, err := o.ledger.RecentWrites(ctx, tab.SourceID, tab.Tab, now.Add(-o.echoWindow))
	if err != nil {
		return nil, fmt.Errorf("syncrun: recent writes: %w", err)
	}
	if len(writes) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(writes))
	for _, w := range writes {
		out[reconcile.EchoKey(w.Tab, w.Cell)] = decode.Canonical(w.Text)
	}
	return out, nil
}

// Summary is the result of SyncAll.
type Summary struct {
	Reports []*TabReport
	// FailedTabs counts outpatient tabs that failed and were skipped.
	FailedTabs int
}

var kindOrder = map[grid.Kind]int{grid.KindRF: 0, grid.KindManual: 1, grid.KindWard: 2, grid.KindOutpatient: 3}

// SyncAll runs every tab one at a time, kinds in a fixed order. A failing
// outpatient tab is counted and the loop moves on; for other kinds the first
// error is returned after the remaining tabs have run.
func (o *Orchestrator) SyncAll(ctx context.Context, rt *Runtime, tabs []TabConfig) (*Summary, error) {
	if err := rt.EnsureFresh(ctx); err != nil {
		return nil, fmt.Errorf("syncrun: refresh credentials: %w", err)
	}

	ordered := append([]TabConfig(nil), tabs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return kindOrder[ordered[i].Kind] < kindOrder[ordered[j].Kind]
	})

	summary := &Summary{}
	var firstErr error
	for _, tab := range ordered {
		if ctx.Err() != nil {
			break
		}
		rep, err := o.SyncTab(ctx, tab)
		if rep != nil {
			summary.Reports = append(summary.Reports, rep)
		}
		if err == nil {
			continue
		}
		if tab.Kind == grid.KindOutpatient {
			summary.FailedTabs++
			o.logger.Warn("outpatient tab failed, continuing", "tab", tab.Tab, "error", err)
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return summary, firstErr
}
