package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type fakeDirectory struct {
	byExternal map[string]uuid.UUID
	byName     map[string][]uuid.UUID
	calls      int
	err        error
}

func (f *fakeDirectory) PatientByExternalID(_ context.Context, externalID string) (uuid.UUID, bool, error) {
	f.calls++
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	id, ok := f.byExternal[externalID]
	return id, ok, nil
}

func (f *fakeDirectory) PatientsByName(_ context.Context, name string) ([]uuid.UUID, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[name], nil
}

func TestResolver_ExternalIDWins(t *testing.T) {
	chart := uuid.New()
	other := uuid.New()
	dir := &fakeDirectory{
		byExternal: map[string]uuid.UUID{"1234": chart},
		byName:     map[string][]uuid.UUID{"홍길동": {other}},
	}
	r := NewResolver(dir, logging.Discard())

	res, err := r.Resolve(context.Background(), "1234", "홍길동")
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, chart, *res.PatientID)
	assert.Equal(t, MethodExternalID, res.Method)
}

func TestResolver_NameFallbackAfterUnknownChart(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{byName: map[string][]uuid.UUID{"홍길동": {id}}}
	r := NewResolver(dir, logging.Discard())

	res, err := r.Resolve(context.Background(), "9999", "*홍길동2")
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, id, *res.PatientID)
	assert.Equal(t, MethodName, res.Method)
}

func TestResolver_AmbiguousNameNeverResolves(t *testing.T) {
	dir := &fakeDirectory{byName: map[string][]uuid.UUID{"김민수": {uuid.New(), uuid.New()}}}
	r := NewResolver(dir, logging.Discard())

	res, err := r.Resolve(context.Background(), "", "김민수")
	require.NoError(t, err)
	assert.False(t, res.Matched())
	assert.Nil(t, res.PatientID)
	assert.Equal(t, MethodAmbiguous, res.Method)
}

func TestResolver_MemoizesByLiteralPair(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{byName: map[string][]uuid.UUID{"홍길동": {id}}}
	r := NewResolver(dir, logging.Discard())
	ctx := context.Background()

	_, err := r.Resolve(ctx, "", "홍길동")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "", "홍길동")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls)

	_, err = r.Resolve(ctx, "", "홍길동 ")
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls)

	_, err = r.Resolve(ctx, "", "없는사람")
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, Stats{Total: 3, Resolved: 2, Unresolved: 1}, stats)

	r.ClearCache()
	assert.Equal(t, Stats{}, r.Stats())
	_, err = r.Resolve(ctx, "", "홍길동")
	require.NoError(t, err)
	assert.Equal(t, 4, dir.calls)
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("db down")}
	r := NewResolver(dir, logging.Discard())

	_, err := r.Resolve(context.Background(), "1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patient: lookup external id")
	assert.Equal(t, 0, r.Stats().Total)
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"홍길동":     "홍길동",
		"*홍길동":    "홍길동",
		"★ 김철수":   "김철수",
		"#@이영희":   "이영희",
		"박민수2":    "박민수",
		"박민수 (3)": "박민수",
		"  ":       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanName(in), in)
	}
}
