package sheets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// ErrUnsafePath is returned for workbook names that escape the directory.
var ErrUnsafePath = errors.New("sheets: workbook path escapes directory")

// Workbooks serves tabs from xlsx files in a directory. The source id is the
// file name. Writes are saved back to the same file.
type Workbooks struct {
	dir string
	mu  sync.Mutex
}

// NewWorkbooks returns a source rooted at dir.
func NewWorkbooks(dir string) *Workbooks {
	return &Workbooks{dir: dir}
}

func (w *Workbooks) path(sourceID string) (string, error) {
	if sourceID == "" || strings.Contains(sourceID, "..") || filepath.IsAbs(sourceID) {
		return "", ErrUnsafePath
	}
	return filepath.Join(w.dir, filepath.Clean(sourceID)), nil
}

// FetchTab reads every row of the named sheet.
func (w *Workbooks) FetchTab(_ context.Context, sourceID, tab string) (grid.RawGrid, error) {
	path, err := w.path(sourceID)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: open workbook: %w", err)
	}
	defer f.Close()
	return readRows(f, tab)
}

// WriteCell sets one cell and saves the workbook.
func (w *Workbooks) WriteCell(_ context.Context, sourceID, tab, cell, text string) (bool, error) {
	path, err := w.path(sourceID)
	if err != nil {
		return false, err
	}
	if _, _, err := grid.CellCoordinates(cell); err != nil {
		return false, fmt.Errorf("sheets: write cell: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return false, fmt.Errorf("sheets: open workbook: %w", err)
	}
	defer f.Close()
	if idx, err := f.GetSheetIndex(tab); err != nil || idx < 0 {
		return false, fmt.Errorf("sheets: sheet %q not found", tab)
	}
	if err := f.SetCellStr(tab, cell, text); err != nil {
		return false, fmt.Errorf("sheets: set %s!%s: %w", tab, cell, err)
	}
	if err := f.Save(); err != nil {
		return false, fmt.Errorf("sheets: save workbook: %w", err)
	}
	return true, nil
}

// ReadWorkbook reads one sheet from an xlsx file on disk. An empty tab means
// the first sheet.
func ReadWorkbook(path, tab string) (grid.RawGrid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: open workbook: %w", err)
	}
	defer f.Close()
	if tab == "" {
		tab = f.GetSheetName(0)
	}
	return readRows(f, tab)
}

func readRows(f *excelize.File, tab string) (grid.RawGrid, error) {
	rows, err := f.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("sheets: read sheet %q: %w", tab, err)
	}
	return grid.RawGrid(rows), nil
}
