package emrexport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-sheet-sync/internal/archive"
	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/reconcile"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.emrexport")

// Kind selects the export layout.
type Kind string

const (
	KindOutpatient Kind = "outpatient"
	KindInpatient  Kind = "inpatient"
)

// SourceID returns the ledger source id for a kind; file hashes are deduped
// within it.
func (k Kind) SourceID() string {
	return "emr:" + string(k)
}

func (k Kind) gridKind() grid.Kind {
	if k == KindInpatient {
		return grid.KindWard
	}
	return grid.KindOutpatient
}

// ErrAllRowsFailed marks a file where no row could be imported.
var ErrAllRowsFailed = errors.New("emrexport: every row failed")

// Ledger records import attempts and answers file-hash dedup.
type Ledger interface {
	Start(ctx context.Context, meta store.AttemptMeta) (uuid.UUID, error)
	Complete(ctx context.Context, id uuid.UUID, res store.AttemptResult) error
	HasFingerprint(ctx context.Context, sourceID, fingerprint string) (bool, error)
}

// Archiver keeps a copy of processed files.
type Archiver interface {
	ArchiveExport(ctx context.Context, file archive.ExportFile, data []byte) (string, error)
}

// Config wires an Importer. Appointments and Directory are needed for
// outpatient files, Registry for inpatient files.
type Config struct {
	Ledger       Ledger
	Appointments reconcile.Repository
	Directory    patient.Directory
	Registry     *patient.Registry
	Archive      Archiver
	Logger       *logging.Logger
	Now          func() time.Time
}

// Importer processes EMR export files.
type Importer struct {
	cfg Config
}

func NewImporter(cfg Config) (*Importer, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("emrexport: ledger required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Importer{cfg: cfg}, nil
}

// Result summarizes one file.
type Result struct {
	AttemptID uuid.UUID
	Name      string
	Kind      Kind
	SHA256    string
	Duplicate bool
	TotalRows int
	RowErrors []patient.RowError
	Records   reconcile.Stats
	Patients  patient.RegistryStats
	Archived  string
}

// ImportPath reads and imports a file from disk.
func (imp *Importer) ImportPath(ctx context.Context, path string, kind Kind) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emrexport: read %s: %w", path, err)
	}
	return imp.Import(ctx, filepath.Base(path), data, kind)
}

// Import processes one export. A file whose hash already succeeded is
// skipped and reported as a duplicate.
func (imp *Importer) Import(ctx context.Context, name string, data []byte, kind Kind) (*Result, error) {
	ctx, span := tracer.Start(ctx, "emrexport.import")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.emr.file", name), attribute.String("clinic.emr.kind", string(kind)))

	if kind != KindOutpatient && kind != KindInpatient {
		return nil, fmt.Errorf("emrexport: unknown export kind %q", kind)
	}
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return nil, fmt.Errorf("emrexport: unsupported file type: %s", name)
	}

	sum := sha256.Sum256(data)
	res := &Result{Name: name, Kind: kind, SHA256: hex.EncodeToString(sum[:])}
	logger := imp.cfg.Logger.With("file", name, "kind", string(kind))

	dup, err := imp.cfg.Ledger.HasFingerprint(ctx, kind.SourceID(), res.SHA256)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("emrexport: check duplicate: %w", err)
	}
	if dup {
		res.Duplicate = true
		logger.Warn("export already imported, skipping", "sha256", res.SHA256)
		imp.archive(ctx, res, data, "duplicate")
		return res, nil
	}

	attemptID, err := imp.cfg.Ledger.Start(ctx, store.AttemptMeta{SourceID: kind.SourceID(), Tab: name, Kind: kind.gridKind()})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("emrexport: start attempt: %w", err)
	}
	res.AttemptID = attemptID

	stats, runErr := imp.run(ctx, res, data)
	if runErr != nil {
		span.RecordError(runErr)
		logger.Error("export import failed", "error", runErr)
		if err := imp.cfg.Ledger.Complete(ctx, attemptID, store.AttemptResult{Stats: stats, Err: runErr}); err != nil {
			logger.Error("failed to persist attempt error", "error", err)
		}
		imp.archive(ctx, res, data, "failed")
		return res, runErr
	}

	if err := imp.cfg.Ledger.Complete(ctx, attemptID, store.AttemptResult{Stats: stats, Fingerprint: res.SHA256}); err != nil {
		return res, fmt.Errorf("emrexport: complete attempt: %w", err)
	}
	imp.archive(ctx, res, data, "imported")
	logger.Info("export imported",
		"rows", res.TotalRows,
		"row_errors", len(res.RowErrors),
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
	)
	return res, nil
}

func (imp *Importer) run(ctx context.Context, res *Result, data []byte) (store.RunStats, error) {
	var stats store.RunStats
	g, err := readFirstSheet(data)
	if err != nil {
		return stats, err
	}

	switch res.Kind {
	case KindOutpatient:
		err = imp.importOutpatient(ctx, res, g, &stats)
	case KindInpatient:
		err = imp.importInpatient(ctx, res, g, &stats)
	}
	for _, re := range res.RowErrors {
		stats.RecordFailures = append(stats.RecordFailures, fmt.Sprintf("row %d: %s", re.Row, re.Message))
	}
	if err != nil {
		return stats, err
	}
	if res.TotalRows > 0 && len(res.RowErrors) == res.TotalRows {
		return stats, ErrAllRowsFailed
	}
	return stats, nil
}

func (imp *Importer) importOutpatient(ctx context.Context, res *Result, g grid.RawGrid, stats *store.RunStats) error {
	if imp.cfg.Appointments == nil || imp.cfg.Directory == nil {
		return errors.New("emrexport: outpatient import not configured")
	}
	appts, rowErrs, err := ParseOutpatient(g)
	if err != nil {
		return err
	}
	res.TotalRows = len(appts) + len(rowErrs)
	res.RowErrors = rowErrs

	records := make([]decode.Record, 0, len(appts))
	for _, a := range appts {
		records = append(records, a.Record())
	}
	engine := reconcile.NewEngine(imp.cfg.Appointments, patient.NewResolver(imp.cfg.Directory, imp.cfg.Logger), imp.cfg.Logger)
	rep, err := engine.Apply(ctx, records, imp.cfg.Now(), reconcile.Options{
		Tab:       ExportTab,
		Source:    store.SourceEMR,
		Protected: []store.Source{store.SourceInternal},
	})
	res.Records = rep.Stats
	stats.Processed = rep.Stats.Processed
	stats.Created = rep.Stats.Created
	stats.Updated = rep.Stats.Updated
	stats.Skipped = rep.Stats.Skipped
	stats.Failed = rep.Stats.Failed + len(rowErrs)
	for _, f := range rep.Failures() {
		res.RowErrors = append(res.RowErrors, patient.RowError{Row: rowOf(f.DedupKey, appts), Message: f.Err.Error()})
	}
	return err
}

func (imp *Importer) importInpatient(ctx context.Context, res *Result, g grid.RawGrid, stats *store.RunStats) error {
	if imp.cfg.Registry == nil {
		return errors.New("emrexport: inpatient import not configured")
	}
	rows, parseErrs, err := ParseInpatient(g)
	if err != nil {
		return err
	}
	valid, ruleErrs := ValidateAdmissions(rows, imp.cfg.Now())
	res.TotalRows = len(rows) + len(parseErrs)
	res.RowErrors = append(parseErrs, ruleErrs...)

	pstats, upsertErrs := imp.cfg.Registry.Upsert(ctx, SourceRows(valid))
	res.Patients = pstats
	res.RowErrors = append(res.RowErrors, upsertErrs...)

	stats.Processed = len(valid)
	stats.Created = pstats.Created
	stats.Updated = pstats.Updated
	stats.Skipped = pstats.Unchanged + pstats.Conflicts
	stats.Failed = pstats.Failed + len(parseErrs) + len(ruleErrs)
	return nil
}

func (imp *Importer) archive(ctx context.Context, res *Result, data []byte, outcome string) {
	if imp.cfg.Archive == nil {
		return
	}
	key, err := imp.cfg.Archive.ArchiveExport(ctx, archive.ExportFile{
		Name:       res.Name,
		Kind:       string(res.Kind),
		SHA256:     res.SHA256,
		Size:       len(data),
		Outcome:    outcome,
		ImportedAt: imp.cfg.Now(),
	}, data)
	if err != nil {
		imp.cfg.Logger.Warn("failed to archive export", "file", res.Name, "error", err)
		return
	}
	res.Archived = key
}

func readFirstSheet(data []byte) (grid.RawGrid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("emrexport: open workbook: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("emrexport: read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, errors.New("emrexport: workbook has no data rows")
	}
	return grid.RawGrid(rows), nil
}

func rowOf(dedupKey string, appts []Appointment) int {
	for _, a := range appts {
		if a.Record().DedupKey() == dedupKey {
			return a.Row
		}
	}
	return 0
}
