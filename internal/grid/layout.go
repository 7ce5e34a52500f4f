package grid

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultMinDataRows = 3

// Layout carries the per-run context a scan needs.
type Layout struct {
	Kind Kind
	// Year resolves yearless header dates ("2/3(월)").
	Year int
	// MinDataRows is how many data rows a block needs before a month
	// divider row is allowed to end it.
	MinDataRows int
	// Ward is required for KindWard.
	Ward *WardLayout
	// RunDate stamps ward groups, which carry no header date.
	RunDate time.Time
}

func (l Layout) minDataRows() int {
	if l.MinDataRows <= 0 {
		return defaultMinDataRows
	}
	return l.MinDataRows
}

// WardColumn maps one physical sheet column to a bed suffix.
type WardColumn struct {
	Col int    `yaml:"col"`
	Bed string `yaml:"bed"`
}

// WardLayout is externally supplied configuration describing which ward
// sheet columns hold which beds. The scanner never infers it.
type WardLayout struct {
	Version     string       `yaml:"version"`
	HeaderLabel string       `yaml:"header_label"`
	Columns     []WardColumn `yaml:"columns"`
}

// LoadWardLayout reads and validates a YAML ward layout file.
func LoadWardLayout(path string) (*WardLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grid: read ward layout: %w", err)
	}
	return ParseWardLayout(data)
}

// ParseWardLayout decodes and validates a YAML ward layout.
func ParseWardLayout(data []byte) (*WardLayout, error) {
	var layout WardLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("grid: decode ward layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &layout, nil
}

// Validate rejects layouts with missing, duplicate, or out-of-range entries.
func (w *WardLayout) Validate() error {
	if w == nil {
		return errors.New("grid: ward layout is nil")
	}
	if len(w.Columns) == 0 {
		return errors.New("grid: ward layout has no columns")
	}
	seenCols := make(map[int]struct{}, len(w.Columns))
	seenBeds := make(map[string]struct{}, len(w.Columns))
	for i, c := range w.Columns {
		if c.Col < 1 {
			return fmt.Errorf("grid: ward layout column %d: col must be >= 1 (col 0 holds the room label)", i)
		}
		bed := strings.TrimSpace(c.Bed)
		if bed == "" {
			return fmt.Errorf("grid: ward layout column %d: bed is required", i)
		}
		if _, ok := seenCols[c.Col]; ok {
			return fmt.Errorf("grid: ward layout: duplicate col %d", c.Col)
		}
		if _, ok := seenBeds[bed]; ok {
			return fmt.Errorf("grid: ward layout: duplicate bed %q", bed)
		}
		seenCols[c.Col] = struct{}{}
		seenBeds[bed] = struct{}{}
	}
	return nil
}

func (w *WardLayout) headerLabels() []string {
	if w != nil && strings.TrimSpace(w.HeaderLabel) != "" {
		return []string{strings.TrimSpace(w.HeaderLabel)}
	}
	return []string{"병실", "호실"}
}
