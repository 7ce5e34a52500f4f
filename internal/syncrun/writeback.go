package syncrun

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/observability/metrics"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// OverrideRepository lists and releases manually overridden rows.
type OverrideRepository interface {
	ListOverridden(ctx context.Context, tab string) ([]store.PersistedRecord, error)
	ClearOverride(ctx context.Context, id uuid.UUID) error
}

// Locator maps an overridden row to the cell it should be written to.
type Locator interface {
	Locate(rec store.PersistedRecord) (cell string, ok bool)
}

// CellWriter pushes text into one cell. applied is false when the writer
// only recorded the intent.
type CellWriter interface {
	WriteCell(ctx context.Context, sourceID, tab, cell, text string) (applied bool, err error)
}

// SourceCellLocator writes back to the cell the row was last read from.
// Ward rows are skipped since one cell holds several lines.
type SourceCellLocator struct{}

func (SourceCellLocator) Locate(rec store.PersistedRecord) (string, bool) {
	if rec.Domain == grid.KindWard || rec.SourceCell == "" {
		return "", false
	}
	if _, _, err := grid.CellCoordinates(rec.SourceCell); err != nil {
		return "", false
	}
	return rec.SourceCell, true
}

// LogWriter records intended writes without touching the sheet.
type LogWriter struct {
	Logger *logging.Logger
}

func (w LogWriter) WriteCell(_ context.Context, sourceID, tab, cell, text string) (bool, error) {
	logger := w.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("write-back intent", "source_id", sourceID, "tab", tab, "cell", cell, "text", text)
	return false, nil
}

// WriteBackConfig wires a WriteBacker.
type WriteBackConfig struct {
	Ledger  AttemptLedger
	Repos   map[grid.Kind]OverrideRepository
	Locator Locator
	Writer  CellWriter
	// ClearAfterWrite hands rows back to the sync once a write is confirmed.
	ClearAfterWrite bool
	Logger          *logging.Logger
	Metrics         *metrics.SyncMetrics
	Now             func() time.Time
}

// WriteBacker pushes overridden rows back to their source cells and records
// what it wrote so the next sync can tell its own echo from drift.
type WriteBacker struct {
	cfg WriteBackConfig
}

func NewWriteBacker(cfg WriteBackConfig) (*WriteBacker, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("syncrun: write-back requires ledger")
	}
	if len(cfg.Repos) == 0 {
		return nil, errors.New("syncrun: write-back requires repositories")
	}
	if cfg.Locator == nil {
		cfg.Locator = SourceCellLocator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Writer == nil {
		cfg.Writer = LogWriter{Logger: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &WriteBacker{cfg: cfg}, nil
}

// Run writes back every overridden row of one tab. A single failed cell is
// counted and the rest continue.
func (w *WriteBacker) Run(ctx context.Context, tab TabConfig) ([]store.WriteBack, error) {
	repo, ok := w.cfg.Repos[tab.Kind]
	if !ok {
		return nil, fmt.Errorf("syncrun: no override repository for kind %q", tab.Kind)
	}
	logger := w.cfg.Logger.WithRun(tab.SourceID, tab.Tab, string(tab.Kind))

	attemptID, err := w.cfg.Ledger.Start(ctx, store.AttemptMeta{SourceID: tab.SourceID, Tab: tab.Tab, Kind: tab.Kind})
	if err != nil {
		return nil, fmt.Errorf("syncrun: start write-back attempt: %w", err)
	}

	rows, err := repo.ListOverridden(ctx, tab.Tab)
	if err != nil {
		err = fmt.Errorf("syncrun: list overridden: %w", err)
		logger.Error("write-back failed", "attempt_id", attemptID, "error", err)
		if cerr := w.cfg.Ledger.Complete(ctx, attemptID, store.AttemptResult{Err: err}); cerr != nil {
			logger.Error("failed to persist write-back error", "attempt_id", attemptID, "error", cerr)
		}
		return nil, err
	}

	var (
		entries []store.WriteBack
		stats   store.RunStats
	)
	for _, rec := range rows {
		stats.Processed++
		cell, ok := w.cfg.Locator.Locate(rec)
		if !ok {
			stats.Skipped++
			logger.Debug("no target cell for overridden row", "dedup_key", rec.DedupKey)
			continue
		}
		text := FormatCell(rec)
		applied, err := w.cfg.Writer.WriteCell(ctx, tab.SourceID, tab.Tab, cell, text)
		if err != nil {
			stats.Failed++
			stats.RecordFailures = append(stats.RecordFailures, fmt.Sprintf("%s: %v", cell, err))
			logger.Warn("write-back failed", "cell", cell, "error", err)
			continue
		}
		w.cfg.Metrics.ObserveWriteBack(string(tab.Kind), applied)
		entries = append(entries, store.WriteBack{
			RecordID:  rec.ID,
			Tab:       tab.Tab,
			Cell:      cell,
			Text:      text,
			WrittenAt: w.cfg.Now(),
			Applied:   applied,
		})
		if !applied {
			stats.Skipped++
			continue
		}
		stats.Updated++
		if w.cfg.ClearAfterWrite {
			if err := repo.ClearOverride(ctx, rec.ID); err != nil {
				logger.Warn("failed to clear override", "record_id", rec.ID, "error", err)
			}
		}
	}

	if err := w.cfg.Ledger.Complete(ctx, attemptID, store.AttemptResult{Stats: stats, WriteBacks: entries}); err != nil {
		return entries, fmt.Errorf("syncrun: complete write-back attempt: %w", err)
	}
	logger.Info("write-back finished", "rows", stats.Processed, "written", stats.Updated, "failed", stats.Failed)
	return entries, nil
}

var subtypeLabels = map[string]string{
	string(decode.SubtypeHeat):         "온",
	string(decode.SubtypeCold):         "냉",
	string(decode.SubtypeContrast):     "온냉",
	string(decode.SubtypeHeatElectric): "온+전기",
	string(decode.SubtypeElectric):     "전기",
	string(decode.SubtypeManual):       "도수",
	string(decode.SubtypeTraction):     "견인",
	string(decode.SubtypeUltrasound):   "초음파",
	string(decode.SubtypeShockwave):    "충격파",
}

// FormatCell renders a row in the sheet's own cell conventions, so decoding
// the result yields the same booking.
func FormatCell(rec store.PersistedRecord) string {
	switch rec.Status {
	case decode.StatusWaiting:
		return "IN"
	case decode.StatusHold:
		return "W"
	case decode.StatusLongTermUnavailable:
		return "LTU"
	}
	if rec.Admin || rec.SpecialUse != "" {
		return rec.Note
	}
	if rec.Status == decode.StatusBlocked && rec.RawName == "" {
		return "X"
	}

	name := rec.RawName
	if rec.Domain == grid.KindWard {
		parts := []string{}
		if rec.ExternalID != "" {
			parts = append(parts, rec.ExternalID)
		}
		parts = append(parts, name)
		if rec.AdmitDate != nil || rec.DischargeDate != nil {
			parts = append(parts, monthDay(rec.AdmitDate)+"~"+monthDay(rec.DischargeDate))
		}
		return prefixCancelled(rec.Status, strings.Join(parts, " "))
	}

	label := rec.DoctorCode + name
	if sub, ok := subtypeLabels[rec.Subtype]; ok {
		label += "(" + sub + ")"
	}
	if rec.Domain == grid.KindOutpatient && (rec.ExternalID != "" || (rec.DurationMins > 0 && rec.DurationMins != decode.DefaultDuration)) {
		lines := []string{}
		if rec.ExternalID != "" {
			lines = append(lines, rec.ExternalID)
		}
		lines = append(lines, rec.RawName)
		if rec.DoctorCode != "" {
			lines = append(lines, "("+rec.DoctorCode+")")
		}
		if rec.DurationMins > 0 && rec.DurationMins != decode.DefaultDuration {
			lines = append(lines, strconv.Itoa(rec.DurationMins)+"분")
		}
		return prefixCancelled(rec.Status, strings.Join(lines, "\n"))
	}
	return prefixCancelled(rec.Status, label)
}

func prefixCancelled(status decode.Status, text string) string {
	if status == decode.StatusCancelled {
		return "취소 " + text
	}
	return text
}

func monthDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.Itoa(int(t.Month())) + "/" + strconv.Itoa(t.Day())
}
