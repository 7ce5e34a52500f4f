package syncrun

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

type fakeSource struct {
	mu    sync.Mutex
	grids map[string]grid.RawGrid
	calls int
}

func (f *fakeSource) FetchTab(_ context.Context, _ string, tab string) (grid.RawGrid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	g, ok := f.grids[tab]
	if !ok {
		return nil, errors.New("tab not found")
	}
	out := make(grid.RawGrid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

// WriteCell makes fakeSource usable as a CellWriter that edits the grid.
func (f *fakeSource) WriteCell(_ context.Context, _ string, tab, cell, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, col, err := grid.CellCoordinates(cell)
	if err != nil {
		return false, err
	}
	g := f.grids[tab]
	for len(g) <= row {
		g = append(g, nil)
	}
	for len(g[row]) <= col {
		g[row] = append(g[row], "")
	}
	g[row][col] = text
	f.grids[tab] = g
	return true, nil
}

type fakeIdentity struct {
	names map[string]uuid.UUID
}

func (f *fakeIdentity) PatientByExternalID(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (f *fakeIdentity) PatientsByName(_ context.Context, name string) ([]uuid.UUID, error) {
	if id, ok := f.names[name]; ok {
		return []uuid.UUID{id}, nil
	}
	return nil, nil
}

func (f *fakeIdentity) ResourceIDs(context.Context, grid.Kind) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
