package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// PersistedRecord is the durable form of a decoded record.
type PersistedRecord struct {
	ID             uuid.UUID
	Domain         grid.Kind
	DedupKey       string
	Resource       string
	ResourceID     *uuid.UUID
	Date           time.Time
	StartTime      string
	EndTime        string
	PatientID      *uuid.UUID
	RawName        string
	ExternalID     string
	Status         decode.Status
	Note           string
	DurationMins   int
	Subtype        string
	DoctorCode     string
	SpecialUse     string
	Admin          bool
	AdmitDate      *time.Time
	DischargeDate  *time.Time
	ManualOverride bool
	LastSyncedAt   time.Time
	Source         Source
	SourceTab      string
	SourceCell     string
	RawText        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const recordColumns = `id, domain, dedup_key, resource, resource_id, record_date, start_time, end_time,
	patient_id, raw_name, external_id, status, note, duration_mins, subtype, doctor_code,
	special_use, admin, admit_date, discharge_date, manual_override, last_synced_at,
	source, source_tab, source_cell, raw_text, created_at, updated_at`

// RecordStore is the record repository scoped to one domain.
type RecordStore struct {
	db     DB
	domain grid.Kind
	now    func() time.Time
}

// NewRecordStore returns a repository for the given domain.
func NewRecordStore(db DB, domain grid.Kind) *RecordStore {
	return &RecordStore{db: db, domain: domain, now: func() time.Time { return time.Now().UTC() }}
}

// Domain returns the kind this store is scoped to.
func (s *RecordStore) Domain() grid.Kind {
	return s.domain
}

// FindByDedupKey loads the record stored under key.
func (s *RecordStore) FindByDedupKey(ctx context.Context, key string) (*PersistedRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+`
		FROM schedule_records
		WHERE domain = $1 AND dedup_key = $2`, string(s.domain), key)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by dedup key: %w", err)
	}
	return rec, nil
}

// Create inserts a new record. A concurrent insert of the same key yields
// ErrDuplicateKey.
func (s *RecordStore) Create(ctx context.Context, rec *PersistedRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := s.now()
	rec.Domain = s.domain
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tag, err := s.db.Exec(ctx, `
		INSERT INTO schedule_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		ON CONFLICT (domain, dedup_key) DO NOTHING`,
		rec.ID, string(rec.Domain), rec.DedupKey, rec.Resource, rec.ResourceID, rec.Date, rec.StartTime, rec.EndTime,
		rec.PatientID, rec.RawName, rec.ExternalID, string(rec.Status), rec.Note, rec.DurationMins, rec.Subtype, rec.DoctorCode,
		rec.SpecialUse, rec.Admin, rec.AdmitDate, rec.DischargeDate, rec.ManualOverride, rec.LastSyncedAt,
		string(rec.Source), rec.SourceTab, rec.SourceCell, rec.RawText, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// ConditionalUpdate writes the mutable fields of rec onto row id, but only
// while the row is not manually overridden. It reports whether a row changed.
func (s *RecordStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, rec *PersistedRecord) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_records SET
			resource = $2, resource_id = $3, end_time = $4, patient_id = $5, raw_name = $6,
			external_id = $7, status = $8, note = $9, duration_mins = $10, subtype = $11,
			doctor_code = $12, special_use = $13, admin = $14, admit_date = $15, discharge_date = $16,
			last_synced_at = $17, source_cell = $18, raw_text = $19, updated_at = $20
		WHERE id = $1 AND manual_override = false`,
		id, rec.Resource, rec.ResourceID, rec.EndTime, rec.PatientID, rec.RawName,
		rec.ExternalID, string(rec.Status), rec.Note, rec.DurationMins, rec.Subtype,
		rec.DoctorCode, rec.SpecialUse, rec.Admin, rec.AdmitDate, rec.DischargeDate,
		rec.LastSyncedAt, rec.SourceCell, rec.RawText, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("store: conditional update: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Touch advances the sync timestamp without changing content fields.
func (s *RecordStore) Touch(ctx context.Context, id uuid.UUID, syncedAt time.Time, rawText string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE schedule_records SET last_synced_at = $2, raw_text = $3
		WHERE id = $1 AND manual_override = false`, id, syncedAt, rawText)
	if err != nil {
		return fmt.Errorf("store: touch: %w", err)
	}
	return nil
}

// CancelStale soft-cancels sheet-sourced rows of a tab that were not seen in
// the run at before. Keys listed in keep are left alone.
func (s *RecordStore) CancelStale(ctx context.Context, tab string, before time.Time, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_records SET status = 'cancelled', updated_at = $4
		WHERE domain = $1 AND source_tab = $2 AND source = 'sheet'
			AND manual_override = false
			AND status NOT IN ('cancelled', 'completed', 'no_show')
			AND last_synced_at < $3
			AND NOT (dedup_key = ANY($5))`,
		string(s.domain), tab, before, s.now(), keep)
	if err != nil {
		return 0, fmt.Errorf("store: cancel stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListOverridden returns the manually overridden rows of a tab.
func (s *RecordStore) ListOverridden(ctx context.Context, tab string) ([]PersistedRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+`
		FROM schedule_records
		WHERE domain = $1 AND source_tab = $2 AND manual_override = true
		ORDER BY record_date, start_time, resource`, string(s.domain), tab)
	if err != nil {
		return nil, fmt.Errorf("store: list overridden: %w", err)
	}
	defer rows.Close()

	var out []PersistedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan overridden: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list overridden: %w", err)
	}
	return out, nil
}

// SetOverride marks a row as edited in the application.
func (s *RecordStore) SetOverride(ctx context.Context, id uuid.UUID) error {
	return s.setOverride(ctx, id, true)
}

// ClearOverride hands a row back to the sync.
func (s *RecordStore) ClearOverride(ctx context.Context, id uuid.UUID) error {
	return s.setOverride(ctx, id, false)
}

func (s *RecordStore) setOverride(ctx context.Context, id uuid.UUID, value bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_records SET manual_override = $2, updated_at = $3
		WHERE id = $1`, id, value, s.now())
	if err != nil {
		return fmt.Errorf("store: set override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*PersistedRecord, error) {
	var (
		rec                    PersistedRecord
		domain, status, source string
	)
	err := row.Scan(
		&rec.ID, &domain, &rec.DedupKey, &rec.Resource, &rec.ResourceID, &rec.Date, &rec.StartTime, &rec.EndTime,
		&rec.PatientID, &rec.RawName, &rec.ExternalID, &status, &rec.Note, &rec.DurationMins, &rec.Subtype, &rec.DoctorCode,
		&rec.SpecialUse, &rec.Admin, &rec.AdmitDate, &rec.DischargeDate, &rec.ManualOverride, &rec.LastSyncedAt,
		&source, &rec.SourceTab, &rec.SourceCell, &rec.RawText, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Domain = grid.Kind(domain)
	rec.Status = decode.Status(status)
	rec.Source = Source(source)
	return &rec, nil
}
