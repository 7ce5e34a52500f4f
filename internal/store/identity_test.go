package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
)

func TestIdentityStore_PatientLookups(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewIdentityStore(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id FROM patients").
		WithArgs("1234").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectQuery("SELECT id FROM patients").
		WithArgs("9999").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id FROM patients").
		WithArgs("김민수").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()).AddRow(uuid.New()))

	got, ok, err := s.PatientByExternalID(context.Background(), "1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok, err = s.PatientByExternalID(context.Background(), "9999")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.PatientsByName(context.Background(), "김민수")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityStore_FindByEMRIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewIdentityStore(mock)
	mock.ExpectQuery("SELECT id, external_id, name, dob, sex, phone, source").
		WithArgs("P1").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.FindByEMRID(context.Background(), "P1")
	assert.True(t, errors.Is(err, patient.ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityStore_ResourceIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewIdentityStore(mock)
	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT name, id FROM resources").
		WithArgs("manual").
		WillReturnRows(pgxmock.NewRows([]string{"name", "id"}).AddRow("김치료", a).AddRow("박치료", b))

	got, err := s.ResourceIDs(context.Background(), grid.KindManual)
	require.NoError(t, err)
	assert.Equal(t, map[string]uuid.UUID{"김치료": a, "박치료": b}, got)

	require.NoError(t, mock.ExpectationsWereMet())
}
