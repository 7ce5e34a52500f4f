package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// AttemptStatus is the lifecycle state of a sync attempt.
type AttemptStatus string

const (
	AttemptRunning   AttemptStatus = "running"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// RunStats are the counters persisted with an attempt.
type RunStats struct {
	Processed      int                `json:"processed"`
	Created        int                `json:"created"`
	Updated        int                `json:"updated"`
	Skipped        int                `json:"skipped"`
	Failed         int                `json:"failed"`
	Cancelled      int                `json:"cancelled"`
	EmptySlots     int                `json:"empty_slots"`
	Unchanged      bool               `json:"unchanged,omitempty"`
	DateFrom       string             `json:"date_from,omitempty"`
	DateTo         string             `json:"date_to,omitempty"`
	PerDate        map[string]int     `json:"per_date,omitempty"`
	CellErrors     []decode.CellError `json:"cell_errors,omitempty"`
	RecordFailures []string           `json:"record_failures,omitempty"`
}

// WriteBack is one cell the system itself wrote to the source.
type WriteBack struct {
	RecordID  uuid.UUID `json:"record_id"`
	Tab       string    `json:"tab"`
	Cell      string    `json:"cell"`
	Text      string    `json:"text"`
	WrittenAt time.Time `json:"written_at"`
	Applied   bool      `json:"applied"`
}

// AttemptMeta identifies the run being started.
type AttemptMeta struct {
	SourceID string
	Tab      string
	Kind     grid.Kind
}

// AttemptResult is what a finished run reports.
type AttemptResult struct {
	Stats       RunStats
	Fingerprint string
	Err         error
	WriteBacks  []WriteBack
}

// SyncAttempt is one ledger row.
type SyncAttempt struct {
	ID          uuid.UUID
	SourceID    string
	Tab         string
	Kind        grid.Kind
	Status      AttemptStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	Stats       RunStats
	Fingerprint string
	Error       string
	WriteBacks  []WriteBack
}

// LastRun is the fingerprint and time of the newest successful attempt.
type LastRun struct {
	Fingerprint string
	SyncedAt    time.Time
}

// AttemptStore is the sync attempt ledger.
type AttemptStore struct {
	db  DB
	now func() time.Time
}

// NewAttemptStore creates a ledger over db.
func NewAttemptStore(db DB) *AttemptStore {
	return &AttemptStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Start inserts a running attempt and returns its id.
func (s *AttemptStore) Start(ctx context.Context, meta AttemptMeta) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO sync_attempts (id, source_id, tab, kind, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, meta.SourceID, meta.Tab, string(meta.Kind), string(AttemptRunning), s.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: start attempt: %w", err)
	}
	return id, nil
}

// Complete finalizes an attempt. A non-nil result error marks it failed.
func (s *AttemptStore) Complete(ctx context.Context, id uuid.UUID, res AttemptResult) error {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal stats: %w", err)
	}
	writeBacks, err := json.Marshal(nonNilWriteBacks(res.WriteBacks))
	if err != nil {
		return fmt.Errorf("store: marshal write-backs: %w", err)
	}
	status := AttemptSucceeded
	var errText *string
	if res.Err != nil {
		status = AttemptFailed
		msg := res.Err.Error()
		errText = &msg
	}
	var fingerprint *string
	if res.Fingerprint != "" {
		fingerprint = &res.Fingerprint
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE sync_attempts
		SET status = $2, finished_at = $3, stats = $4, fingerprint = $5, error = $6, write_backs = $7
		WHERE id = $1`,
		id, string(status), s.now(), stats, fingerprint, errText, writeBacks)
	if err != nil {
		return fmt.Errorf("store: complete attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LastSuccessful returns the newest successful attempt for (sourceID, tab).
// Its Fingerprint is empty when that attempt must not short-circuit the next
// run (write-backs, runs with failed records).
func (s *AttemptStore) LastSuccessful(ctx context.Context, sourceID, tab string) (*LastRun, error) {
	var (
		fingerprint *string
		syncedAt    time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT fingerprint, finished_at
		FROM sync_attempts
		WHERE source_id = $1 AND tab = $2 AND status = 'succeeded'
		ORDER BY finished_at DESC
		LIMIT 1`, sourceID, tab).Scan(&fingerprint, &syncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: last successful: %w", err)
	}
	run := &LastRun{SyncedAt: syncedAt}
	if fingerprint != nil {
		run.Fingerprint = *fingerprint
	}
	return run, nil
}

// RecentWrites returns the write-back entries for a tab written since since.
func (s *AttemptStore) RecentWrites(ctx context.Context, sourceID, tab string, since time.Time) ([]WriteBack, error) {
	rows, err := s.db.Query(ctx, `
		SELECT write_backs
		FROM sync_attempts
		WHERE source_id = $1 AND tab = $2 AND finished_at >= $3 AND write_backs IS NOT NULL
		ORDER BY finished_at`, sourceID, tab, since)
	if err != nil {
		return nil, fmt.Errorf("store: recent writes: %w", err)
	}
	defer rows.Close()

	var out []WriteBack
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan writes: %w", err)
		}
		var entries []WriteBack
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("store: decode writes: %w", err)
		}
		for _, e := range entries {
			if e.Applied && !e.WrittenAt.Before(since) {
				out = append(out, e)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent writes: %w", err)
	}
	return out, nil
}

// HasFingerprint reports whether any successful attempt of sourceID carried
// the fingerprint. EMR imports use it for file-hash dedup.
func (s *AttemptStore) HasFingerprint(ctx context.Context, sourceID, fingerprint string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM sync_attempts
		WHERE source_id = $1 AND fingerprint = $2 AND status = 'succeeded'
		LIMIT 1`, sourceID, fingerprint).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has fingerprint: %w", err)
	}
	return true, nil
}

// LatestSuccessAt returns when any attempt last succeeded.
func (s *AttemptStore) LatestSuccessAt(ctx context.Context) (time.Time, bool, error) {
	var at *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT MAX(finished_at) FROM sync_attempts WHERE status = 'succeeded'`).Scan(&at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: latest success: %w", err)
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

// CountFailuresSince counts failed attempts that started at or after since.
func (s *AttemptStore) CountFailuresSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM sync_attempts WHERE status = 'failed' AND started_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count failures: %w", err)
	}
	return n, nil
}

// Recent lists the newest attempts across all sources.
func (s *AttemptStore) Recent(ctx context.Context, limit int) ([]SyncAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, source_id, tab, kind, status, started_at, finished_at, stats, fingerprint, error
		FROM sync_attempts
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent attempts: %w", err)
	}
	defer rows.Close()

	var out []SyncAttempt
	for rows.Next() {
		var (
			a                  SyncAttempt
			kind, status       string
			stats              []byte
			fingerprint, errTx *string
		)
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Tab, &kind, &status, &a.StartedAt, &a.FinishedAt, &stats, &fingerprint, &errTx); err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		a.Kind = grid.Kind(kind)
		a.Status = AttemptStatus(status)
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &a.Stats); err != nil {
				return nil, fmt.Errorf("store: decode stats: %w", err)
			}
		}
		if fingerprint != nil {
			a.Fingerprint = *fingerprint
		}
		if errTx != nil {
			a.Error = *errTx
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent attempts: %w", err)
	}
	return out, nil
}

func nonNilWriteBacks(in []WriteBack) []WriteBack {
	if in == nil {
		return []WriteBack{}
	}
	return in
}
