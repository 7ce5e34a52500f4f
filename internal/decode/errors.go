package decode

import (
	"fmt"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// CellError reports a non-empty cell that no rule could classify. It is
// collected per batch and never aborts a run.
type CellError struct {
	Row     int       `json:"row"`
	Col     int       `json:"col"`
	Cell    string    `json:"cell"`
	Date    time.Time `json:"date,omitempty"`
	Message string    `json:"message"`
	Raw     string    `json:"raw"`
}

func (e *CellError) Error() string {
	date := ""
	if !e.Date.IsZero() {
		date = " " + e.Date.Format(grid.DateLayout)
	}
	return fmt.Sprintf("decode: cell %s (row %d, col %d)%s: %s: %q", e.Cell, e.Row, e.Col, date, e.Message, e.Raw)
}

func newCellError(c CellContext, message string) *CellError {
	return &CellError{
		Row:     c.Row,
		Col:     c.Col,
		Cell:    grid.CellName(c.Row, c.Col),
		Date:    c.Date,
		Message: message,
		Raw:     c.Text,
	}
}
