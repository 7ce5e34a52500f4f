package decode

import (
	"errors"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// RawCell is a non-empty source cell kept for fingerprinting ward tabs.
type RawCell struct {
	Resource string
	Text     string
}

// Batch is everything one tab produced in one pass.
type Batch struct {
	Kind       grid.Kind
	Tab        string
	Records    []Record
	Errors     []*CellError
	EmptySlots int
	Notes      int
	Cells      []RawCell
}

// Walk decodes every data cell of the scanned blocks. Rows whose first column
// is not a recognisable time are skipped for slot kinds; ward rows need a room
// label.
func Walk(g grid.RawGrid, blocks []grid.Block, kind grid.Kind, tab string, dec *Decoder) *Batch {
	batch := &Batch{Kind: kind, Tab: tab}
	for _, block := range blocks {
		for row := block.DataStart; row <= block.End; row++ {
			label := g.Cell(row, 0)
			clock := ""
			if kind == grid.KindWard {
				if label == "" {
					continue
				}
			} else {
				t, ok := grid.ParseRowTime(label)
				if !ok {
					continue
				}
				clock = t
			}
			for _, group := range block.Groups {
				for _, col := range group.Columns {
					batch.add(dec, CellContext{
						Kind:     kind,
						Tab:      tab,
						Date:     group.Date,
						Time:     clock,
						Resource: col.Resource,
						Room:     roomOf(kind, label),
						Row:      row,
						Col:      col.Col,
						Text:     g.Cell(row, col.Col),
					})
				}
			}
		}
	}
	return batch
}

func (b *Batch) add(dec *Decoder, c CellContext) {
	if c.Kind == grid.KindWard && !isEmptySentinel(Canonical(c.Text)) {
		bed := c.Resource
		if c.Room != "" {
			bed = c.Room + "-" + c.Resource
		}
		b.Cells = append(b.Cells, RawCell{Resource: bed, Text: c.Text})
	}
	out, err := dec.Decode(c)
	if err != nil {
		var ce *CellError
		if errors.As(err, &ce) {
			b.Errors = append(b.Errors, ce)
		} else {
			b.Errors = append(b.Errors, newCellError(c, err.Error()))
		}
		return
	}
	switch out.Outcome {
	case OutcomeEmpty:
		b.EmptySlots++
	case OutcomeNote:
		b.Notes++
	case OutcomeRecords:
		b.Records = append(b.Records, out.Records...)
	}
}

func roomOf(kind grid.Kind, label string) string {
	if kind != grid.KindWard {
		return ""
	}
	return label
}
