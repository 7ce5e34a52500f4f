// Package grid recovers repeating header/data blocks from loosely formatted
// schedule sheets. Each sheet kind has its own marker convention; the scan
// loop itself is shared.
package grid

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Kind identifies which department sheet a grid came from.
type Kind string

const (
	KindRF         Kind = "rf"
	KindManual     Kind = "manual"
	KindWard       Kind = "ward"
	KindOutpatient Kind = "outpatient"
)

// Valid reports whether k is one of the known sheet kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRF, KindManual, KindWard, KindOutpatient:
		return true
	default:
		return false
	}
}

// RawGrid is one fetched tab: rows of text cells. Rows may have different lengths.
type RawGrid [][]string

// Cell returns the trimmed text at (row, col), or "" when out of range.
func (g RawGrid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	r := g[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Width is the length of the given row.
func (g RawGrid) Width(row int) int {
	if row < 0 || row >= len(g) {
		return 0
	}
	return len(g[row])
}

// Column binds one sub-column of a group to a resource (room number,
// therapist name, bed suffix).
type Column struct {
	Col      int
	Resource string
}

// Group is a column range inside a block bound to one calendar date.
type Group struct {
	StartCol int
	Date     time.Time
	Columns  []Column
}

// Block is a contiguous row range delimited by structural marker rows.
// End is inclusive.
type Block struct {
	Marker    int
	DataStart int
	End       int
	Groups    []Group
}

// DataRows returns the number of rows between DataStart and End.
func (b Block) DataRows() int {
	if b.End < b.DataStart {
		return 0
	}
	return b.End - b.DataStart + 1
}

// CellName converts zero-based coordinates to an A1 reference ("C12").
func CellName(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return name
}

// CellCoordinates converts an A1 reference back to zero-based coordinates.
func CellCoordinates(ref string) (row, col int, err error) {
	c, r, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return 0, 0, err
	}
	return r - 1, c - 1, nil
}
