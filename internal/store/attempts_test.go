package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

func TestAttemptStore_StartAndComplete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAttemptStore(mock)
	mock.ExpectExec("INSERT INTO sync_attempts").
		WithArgs(pgxmock.AnyArg(), "sheet-1", "RF", "rf", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	id, err := s.Start(context.Background(), AttemptMeta{SourceID: "sheet-1", Tab: "RF", Kind: grid.KindRF})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	mock.ExpectExec("UPDATE sync_attempts").
		WithArgs(id, "failed", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	err = s.Complete(context.Background(), id, AttemptResult{Err: errors.New("fetch failed")})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptStore_LastSuccessful(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAttemptStore(mock)
	fp := "abc123"
	at := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT fingerprint, finished_at").
		WithArgs("sheet-1", "RF").
		WillReturnRows(pgxmock.NewRows([]string{"fingerprint", "finished_at"}).AddRow(&fp, at))

	run, err := s.LastSuccessful(context.Background(), "sheet-1", "RF")
	require.NoError(t, err)
	assert.Equal(t, "abc123", run.Fingerprint)
	assert.Equal(t, at, run.SyncedAt)

	mock.ExpectQuery("SELECT fingerprint, finished_at").
		WithArgs("sheet-1", "외래").
		WillReturnRows(pgxmock.NewRows([]string{"fingerprint", "finished_at"}).AddRow((*string)(nil), at))
	run, err = s.LastSuccessful(context.Background(), "sheet-1", "외래")
	require.NoError(t, err)
	assert.Empty(t, run.Fingerprint, "attempts without a fingerprint never short-circuit")

	mock.ExpectQuery("SELECT fingerprint, finished_at").
		WithArgs("sheet-1", "도수").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.LastSuccessful(context.Background(), "sheet-1", "도수")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptStore_RecentWritesFiltersOldAndUnapplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	entries := []WriteBack{
		{Tab: "RF", Cell: "B4", Text: "홍길동", WrittenAt: since.Add(10 * time.Minute), Applied: true},
		{Tab: "RF", Cell: "B5", Text: "old", WrittenAt: since.Add(-time.Minute), Applied: true},
		{Tab: "RF", Cell: "B6", Text: "logged only", WrittenAt: since.Add(5 * time.Minute)},
	}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)

	s := NewAttemptStore(mock)
	mock.ExpectQuery("SELECT write_backs").
		WithArgs("sheet-1", "RF", since).
		WillReturnRows(pgxmock.NewRows([]string{"write_backs"}).AddRow(raw))

	got, err := s.RecentWrites(context.Background(), "sheet-1", "RF", since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B4", got[0].Cell)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptStore_HasFingerprint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAttemptStore(mock)
	mock.ExpectQuery("SELECT 1 FROM sync_attempts").
		WithArgs("emr-outpatient", "deadbeef").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM sync_attempts").
		WithArgs("emr-outpatient", "cafe").
		WillReturnError(pgx.ErrNoRows)

	ok, err := s.HasFingerprint(context.Background(), "emr-outpatient", "deadbeef")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasFingerprint(context.Background(), "emr-outpatient", "cafe")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptStore_HealthQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAttemptStore(mock)
	at := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT MAX\\(finished_at\\)").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&at))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs(at).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	latest, ok, err := s.LatestSuccessAt(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, latest)

	n, err := s.CountFailuresSince(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, mock.ExpectationsWereMet())
}
