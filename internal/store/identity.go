package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
)

// IdentityStore reads and writes patients and schedule resources. Every query
// ignores soft-deleted rows.
type IdentityStore struct {
	db  DB
	now func() time.Time
}

// NewIdentityStore creates an identity repository over db.
func NewIdentityStore(db DB) *IdentityStore {
	return &IdentityStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// PatientByExternalID finds a patient by chart number.
func (s *IdentityStore) PatientByExternalID(ctx context.Context, externalID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id FROM patients
		WHERE external_id = $1 AND deleted_at IS NULL
		LIMIT 1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("store: patient by external id: %w", err)
	}
	return id, true, nil
}

// PatientsByName returns active patients whose name matches exactly. Two rows
// are enough for the caller to detect ambiguity.
func (s *IdentityStore) PatientsByName(ctx context.Context, name string) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM patients
		WHERE name = $1 AND status = 'active' AND deleted_at IS NULL
		LIMIT 2`, name)
	if err != nil {
		return nil, fmt.Errorf("store: patients by name: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan patient: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: patients by name: %w", err)
	}
	return ids, nil
}

// FindByEMRID loads a patient by EMR patient id.
func (s *IdentityStore) FindByEMRID(ctx context.Context, emrPatientID string) (*patient.Record, error) {
	var (
		rec patient.Record
		dob *time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, external_id, name, dob, sex, phone, source
		FROM patients
		WHERE external_id = $1 AND deleted_at IS NULL`, emrPatientID).
		Scan(&rec.ID, &rec.EMRPatientID, &rec.Name, &dob, &rec.Sex, &rec.Phone, &rec.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, patient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find patient: %w", err)
	}
	if dob != nil {
		rec.DOB = *dob
	}
	return &rec, nil
}

// CreatePatient inserts an active patient.
func (s *IdentityStore) CreatePatient(ctx context.Context, rec *patient.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var dob *time.Time
	if !rec.DOB.IsZero() {
		dob = &rec.DOB
	}
	now := s.now()
	_, err := s.db.Exec(ctx, `
		INSERT INTO patients (id, external_id, name, dob, sex, phone, source, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, $8)`,
		rec.ID, rec.EMRPatientID, rec.Name, dob, rec.Sex, rec.Phone, rec.Source, now)
	if err != nil {
		return fmt.Errorf("store: create patient: %w", err)
	}
	return nil
}

// UpdatePhone refreshes a patient's contact number.
func (s *IdentityStore) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE patients SET phone = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`, id, phone, s.now())
	if err != nil {
		return fmt.Errorf("store: update phone: %w", err)
	}
	return nil
}

// RecordConflict stores an identity change for manual review.
func (s *IdentityStore) RecordConflict(ctx context.Context, c *patient.Conflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO patient_identity_conflicts (id, patient_id, external_id, field, existing_value, incoming_value, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PatientID, c.EMRPatientID, c.Field, c.Existing, c.Incoming, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("store: record conflict: %w", err)
	}
	return nil
}

// ResourceIDs returns the name to id table for one kind of resource.
func (s *IdentityStore) ResourceIDs(ctx context.Context, kind grid.Kind) (map[string]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, id FROM resources
		WHERE kind = $1 AND deleted_at IS NULL`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("store: resource ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var (
			name string
			id   uuid.UUID
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("store: scan resource: %w", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: resource ids: %w", err)
	}
	return out, nil
}
