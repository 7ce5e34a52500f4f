// Package reconcile merges decoded records into storage while protecting
// rows edited in the application.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Repository is the per-domain record repository.
type Repository interface {
	FindByDedupKey(ctx context.Context, key string) (*store.PersistedRecord, error)
	Create(ctx context.Context, rec *store.PersistedRecord) error
	ConditionalUpdate(ctx context.Context, id uuid.UUID, rec *store.PersistedRecord) (bool, error)
	Touch(ctx context.Context, id uuid.UUID, syncedAt time.Time, rawText string) error
	CancelStale(ctx context.Context, tab string, before time.Time, keep []string) (int64, error)
}

// PatientResolver maps loose identities to patient ids.
type PatientResolver interface {
	Resolve(ctx context.Context, externalID, rawName string) (patient.Resolution, error)
}

// Outcome is the decision taken for one record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Skip reasons.
const (
	ReasonOverride  = "manual_override"
	ReasonDuplicate = "duplicate_in_batch"
	ReasonUnchanged = "unchanged"
	ReasonEcho      = "write_back_echo"
	ReasonProtected = "protected_source"
	ReasonRaced     = "override_race"
)

// Result is the outcome for one record.
type Result struct {
	DedupKey string
	Outcome  Outcome
	Reason   string
	Err      error
}

// Stats aggregates one Apply call.
type Stats struct {
	Processed int
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	Cancelled int
}

// Report is what Apply returns.
type Report struct {
	Stats   Stats
	Results []Result
}

// Failures lists the per-record errors.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Options configures one Apply call.
type Options struct {
	Tab    string
	Source store.Source
	// Resources maps a resource label to its id. Read-only during the run.
	Resources map[string]uuid.UUID
	// Echoes holds the cells write-back wrote recently, keyed by EchoKey.
	Echoes map[string]string
	// Sweep cancels rows of the tab not seen in this run.
	Sweep bool
	// Protected sources are never updated by this run.
	Protected []store.Source
}

// EchoKey builds the lookup key for Options.Echoes.
func EchoKey(tab, cell string) string {
	return tab + "!" + cell
}

// Engine is the create/update/skip state machine.
type Engine struct {
	repo     Repository
	resolver PatientResolver
	logger   *logging.Logger
}

// NewEngine wires an engine to a repository and resolver.
func NewEngine(repo Repository, resolver PatientResolver, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{repo: repo, resolver: resolver, logger: logger}
}

// Apply processes records in order. A failing record is counted and the
// batch continues; the returned error is reserved for the staleness sweep.
// syncedAt is truncated to the microsecond precision Postgres keeps, so rows
// written earlier in the same batch compare equal to it.
func (e *Engine) Apply(ctx context.Context, records []decode.Record, syncedAt time.Time, opts Options) (Report, error) {
	syncedAt = syncedAt.Truncate(time.Microsecond)
	var rep Report
	var failedKeys []string
	for _, rec := range records {
		res := e.applyOne(ctx, rec, syncedAt, opts)
		rep.Results = append(rep.Results, res)
		rep.Stats.Processed++
		switch res.Outcome {
		case OutcomeCreated:
			rep.Stats.Created++
		case OutcomeUpdated:
			rep.Stats.Updated++
		case OutcomeSkipped:
			rep.Stats.Skipped++
		case OutcomeFailed:
			rep.Stats.Failed++
			failedKeys = append(failedKeys, res.DedupKey)
			e.logger.Warn("record reconcile failed", "dedup_key", res.DedupKey, "error", res.Err)
		}
	}

	if opts.Sweep {
		n, err := e.repo.CancelStale(ctx, opts.Tab, syncedAt, failedKeys)
		if err != nil {
			return rep, fmt.Errorf("reconcile: staleness sweep: %w", err)
		}
		rep.Stats.Cancelled = int(n)
		if n > 0 {
			e.logger.Info("stale records cancelled", "tab", opts.Tab, "count", n)
		}
	}
	return rep, nil
}

func (e *Engine) applyOne(ctx context.Context, rec decode.Record, syncedAt time.Time, opts Options) Result {
	key := rec.DedupKey()
	res := Result{DedupKey: key}
	fail := func(err error) Result {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	skip := func(reason string) Result {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		return res
	}

	existing, err := e.repo.FindByDedupKey(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail(fmt.Errorf("reconcile: lookup %s: %w", key, err))
	}

	if existing != nil {
		if existing.ManualOverride {
			return skip(ReasonOverride)
		}
		if !existing.LastSyncedAt.Before(syncedAt) {
			return skip(ReasonDuplicate)
		}
		for _, src := range opts.Protected {
			if existing.Source == src {
				return skip(ReasonProtected)
			}
		}
	}

	pt := decode.PatientOf(rec)
	resolution, err := e.resolver.Resolve(ctx, pt.ExternalID, pt.RawName)
	if err != nil {
		return fail(fmt.Errorf("reconcile: resolve %s: %w", key, err))
	}

	incoming := toPersisted(rec, resolution, syncedAt, opts)

	if existing == nil {
		if err := e.repo.Create(ctx, incoming); err != nil {
			return fail(fmt.Errorf("reconcile: create %s: %w", key, err))
		}
		res.Outcome = OutcomeCreated
		return res
	}

	if existing.RawText == incoming.RawText && existing.Status == incoming.Status &&
		samePatient(existing.PatientID, incoming.PatientID) {
		if err := e.repo.Touch(ctx, existing.ID, syncedAt, incoming.RawText); err != nil {
			return fail(fmt.Errorf("reconcile: touch %s: %w", key, err))
		}
		return skip(ReasonUnchanged)
	}

	base := rec.Base()
	if written, ok := opts.Echoes[EchoKey(base.Tab, base.Cell)]; ok && written == decode.Canonical(base.RawText) {
		if err := e.repo.Touch(ctx, existing.ID, syncedAt, incoming.RawText); err != nil {
			return fail(fmt.Errorf("reconcile: touch %s: %w", key, err))
		}
		return skip(ReasonEcho)
	}

	changed, err := e.repo.ConditionalUpdate(ctx, existing.ID, incoming)
	if err != nil {
		return fail(fmt.Errorf("reconcile: update %s: %w", key, err))
	}
	if !changed {
		return skip(ReasonRaced)
	}
	res.Outcome = OutcomeUpdated
	return res
}

func samePatient(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
