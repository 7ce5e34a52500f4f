package grid

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	notesLabels          = []string{"비고", "메모", "특이사항"}
	monthDividerPattern  = regexp.MustCompile(`^(?:\d{4}\s*년\s*)?\d{1,2}\s*월$`)
	trailingResourceUnit = regexp.MustCompile(`\s*(번|호기)$`)
)

// strategy is the per-kind part of the scan: which rows are markers and how
// the header rows around a marker become groups.
type strategy interface {
	isMarker(g RawGrid, row int) bool
	// groups returns the valid groups for the marker row and the first data row.
	groups(g RawGrid, marker int) ([]Group, int)
}

// Scanner chunks a raw grid into blocks for one sheet kind.
type Scanner struct {
	layout   Layout
	strategy strategy
}

// NewScanner builds a scanner for the layout's kind.
func NewScanner(layout Layout) (*Scanner, error) {
	var st strategy
	switch layout.Kind {
	case KindRF:
		st = rfStrategy{year: layout.Year}
	case KindManual:
		st = datedHeaderStrategy{labels: []string{"날짜", "DATE"}, year: layout.Year}
	case KindOutpatient:
		st = datedHeaderStrategy{labels: []string{"시간", "TIME"}, year: layout.Year}
	case KindWard:
		if err := layout.Ward.Validate(); err != nil {
			return nil, err
		}
		st = wardStrategy{layout: layout.Ward, runDate: layout.RunDate}
	default:
		return nil, fmt.Errorf("grid: unknown sheet kind %q", layout.Kind)
	}
	return &Scanner{layout: layout, strategy: st}, nil
}

// Scan returns the ordered blocks of g. Blocks without a single valid group
// are dropped; their rows are still consumed.
func (s *Scanner) Scan(g RawGrid) []Block {
	var blocks []Block
	row := 0
	for row < len(g) {
		if !s.strategy.isMarker(g, row) {
			row++
			continue
		}

		marker := row
		groups, dataStart := s.strategy.groups(g, marker)
		end := s.blockEnd(g, dataStart)

		if len(groups) > 0 {
			blocks = append(blocks, Block{
				Marker:    marker,
				DataStart: dataStart,
				End:       end,
				Groups:    groups,
			})
		}

		row = end + 1
		if row <= marker {
			row = marker + 1
		}
	}
	return blocks
}

func (s *Scanner) blockEnd(g RawGrid, dataStart int) int {
	for i := dataStart; i < len(g); i++ {
		if s.strategy.isMarker(g, i) {
			return i - 1
		}
		label := g.Cell(i, 0)
		if isNotesLabel(label) {
			return i - 1
		}
		if monthDividerPattern.MatchString(label) && i-dataStart >= s.layout.minDataRows() {
			return i - 1
		}
	}
	return len(g) - 1
}

func isNotesLabel(label string) bool {
	for _, l := range notesLabels {
		if label == l {
			return true
		}
	}
	return false
}

// rfStrategy: the marker row carries machine numbers 1,2,3... for each day;
// the date of each day sits in the following row.
type rfStrategy struct {
	year int
}

func (rfStrategy) isMarker(g RawGrid, row int) bool {
	return g.Cell(row, 1) == "1" && g.Cell(row, 2) == "2" && g.Cell(row, 3) == "3"
}

func (s rfStrategy) groups(g RawGrid, marker int) ([]Group, int) {
	header := marker + 1
	width := g.Width(marker)

	var starts []int
	for c := 1; c < width; c++ {
		if g.Cell(marker, c) == "1" {
			starts = append(starts, c)
		}
	}

	var groups []Group
	for i, start := range starts {
		stop := width
		if i+1 < len(starts) {
			stop = starts[i+1]
		}

		date, ok := firstDate(g, header, start, stop, s.year)
		if !ok {
			continue
		}

		group := Group{StartCol: start, Date: date}
		for c := start; c < stop; c++ {
			if res := normalizeResource(g.Cell(marker, c)); res != "" {
				group.Columns = append(group.Columns, Column{Col: c, Resource: res})
			}
		}
		if len(group.Columns) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, marker + 2
}

// datedHeaderStrategy: the marker row (col 0 label) carries a date at the
// start of each day group; the following row names the resource of every
// sub-column.
type datedHeaderStrategy struct {
	labels []string
	year   int
}

func (s datedHeaderStrategy) isMarker(g RawGrid, row int) bool {
	label := strings.ToUpper(g.Cell(row, 0))
	for _, l := range s.labels {
		if label == l {
			return true
		}
	}
	return false
}

func (s datedHeaderStrategy) groups(g RawGrid, marker int) ([]Group, int) {
	resources := marker + 1
	width := g.Width(marker)
	if w := g.Width(resources); w > width {
		width = w
	}

	var starts []int
	for c := 1; c < width; c++ {
		if g.Cell(marker, c) != "" {
			starts = append(starts, c)
		}
	}

	var groups []Group
	for i, start := range starts {
		stop := width
		if i+1 < len(starts) {
			stop = starts[i+1]
		}

		date, ok := ParseHeaderDate(g.Cell(marker, start), s.year)
		if !ok {
			continue
		}

		group := Group{StartCol: start, Date: date}
		for c := start; c < stop; c++ {
			if res := normalizeResource(g.Cell(resources, c)); res != "" {
				group.Columns = append(group.Columns, Column{Col: c, Resource: res})
			}
		}
		if len(group.Columns) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, marker + 2
}

// wardStrategy: one group per block; the bed columns come from configuration.
type wardStrategy struct {
	layout  *WardLayout
	runDate time.Time
}

func (s wardStrategy) isMarker(g RawGrid, row int) bool {
	label := g.Cell(row, 0)
	for _, l := range s.layout.headerLabels() {
		if label == l {
			return true
		}
	}
	return false
}

func (s wardStrategy) groups(_ RawGrid, marker int) ([]Group, int) {
	group := Group{StartCol: 1}
	if !s.runDate.IsZero() {
		y, m, d := s.runDate.Date()
		group.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	for _, c := range s.layout.Columns {
		group.Columns = append(group.Columns, Column{Col: c.Col, Resource: strings.TrimSpace(c.Bed)})
	}
	return []Group{group}, marker + 1
}

func firstDate(g RawGrid, row, start, stop, year int) (time.Time, bool) {
	for c := start; c < stop; c++ {
		text := g.Cell(row, c)
		if text == "" {
			continue
		}
		return ParseHeaderDate(text, year)
	}
	return time.Time{}, false
}

func normalizeResource(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return trailingResourceUnit.ReplaceAllString(text, "")
}
