package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// ErrNotFound is returned by RegistryStore lookups that find nothing.
var ErrNotFound = errors.New("patient: not found")

// Record is a registered patient as the EMR knows it.
type Record struct {
	ID           uuid.UUID
	EMRPatientID string
	Name         string
	DOB          time.Time
	Sex          string
	Phone        string
	Source       string
}

// Conflict is an identity field the EMR changed for an existing patient. It
// is stored for manual review; the patient row is left alone.
type Conflict struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	EMRPatientID string
	Field        string
	Existing     string
	Incoming     string
	DetectedAt   time.Time
}

// RegistryStore persists registered patients.
type RegistryStore interface {
	FindByEMRID(ctx context.Context, emrPatientID string) (*Record, error)
	CreatePatient(ctx context.Context, rec *Record) error
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
	RecordConflict(ctx context.Context, c *Conflict) error
}

// RegistryStats counts upsert outcomes.
type RegistryStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// RowError ties a failure to the source row it came from.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SourceRow is one patient read from an export, with its 1-based row number.
type SourceRow struct {
	Line    int
	Patient Record
}

// Registry upserts patients from inpatient exports.
type Registry struct {
	store  RegistryStore
	logger *logging.Logger
	now    func() time.Time
}

// NewRegistry wires a registry to its store.
func NewRegistry(store RegistryStore, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert creates unknown patients by EMR id. Known patients only get their
// phone refreshed; a changed name, birth date or sex is recorded as a
// conflict instead of being applied.
func (r *Registry) Upsert(ctx context.Context, rows []SourceRow) (RegistryStats, []RowError) {
	var stats RegistryStats
	var errs []RowError
	for _, src := range rows {
		row := src.Patient
		outcome, err := r.upsertOne(ctx, &row)
		if err != nil {
			stats.Failed++
			errs = append(errs, RowError{Row: src.Line, Message: err.Error()})
			r.logger.Warn("patient upsert failed", "row", src.Line, "emr_patient_id", row.EMRPatientID, "error", err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			stats.Created++
		case outcomeUpdated:
			stats.Updated++
		case outcomeConflict:
			stats.Conflicts++
		default:
			stats.Unchanged++
		}
	}
	return stats, errs
}

type upsertOutcome int

const (
	outcomeUnchanged upsertOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeConflict
)

func (r *Registry) upsertOne(ctx context.Context, row *Record) (upsertOutcome, error) {
	existing, err := r.store.FindByEMRID(ctx, row.EMRPatientID)
	if errors.Is(err, ErrNotFound) {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.Source == "" {
			row.Source = "emr"
		}
		if err := r.store.CreatePatient(ctx, row); err != nil {
			return 0, fmt.Errorf("patient: create: %w", err)
		}
		return outcomeCreated, nil
	}
	if err != nil {
		return 0, fmt.Errorf("patient: find by emr id: %w", err)
	}

	conflicts := identityDiff(existing, row)
	if len(conflicts) > 0 {
		now := r.now()
		for _, c := range conflicts {
			c.ID = uuid.New()
			c.PatientID = existing.ID
			c.EMRPatientID = row.EMRPatientID
			c.DetectedAt = now
			if err := r.store.RecordConflict(ctx, c); err != nil {
				return 0, fmt.Errorf("patient: record conflict: %w", err)
			}
		}
		return outcomeConflict, nil
	}

	phone := strings.TrimSpace(row.Phone)
	if phone == "" || phone == existing.Phone {
		return outcomeUnchanged, nil
	}
	if err := r.store.UpdatePhone(ctx, existing.ID, phone); err != nil {
		return 0, fmt.Errorf("patient: update phone: %w", err)
	}
	return outcomeUpdated, nil
}

func identityDiff(existing, incoming *Record) []*Conflict {
	var out []*Conflict
	if incoming.Name != "" && incoming.Name != existing.Name {
		out = append(out, &Conflict{Field: "name", Existing: existing.Name, Incoming: incoming.Name})
	}
	if !incoming.DOB.IsZero() && !sameDay(existing.DOB, incoming.DOB) {
		out = append(out, &Conflict{Field: "dob", Existing: dateString(existing.DOB), Incoming: dateString(incoming.DOB)})
	}
	if incoming.Sex != "" && incoming.Sex != existing.Sex {
		out = append(out, &Conflict{Field: "sex", Existing: existing.Sex, Incoming: incoming.Sex})
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
