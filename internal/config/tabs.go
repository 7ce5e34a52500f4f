package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
)

type tabsFile struct {
	SourceID string     `yaml:"source_id"`
	Tabs     []tabEntry `yaml:"tabs"`
}

type tabEntry struct {
	syncrun.TabConfig `yaml:",inline"`
	// WardLayout is a path relative to the tabs file.
	WardLayout string `yaml:"ward_layout"`
}

// LoadTabs reads the tab list. A top-level source_id is the default for
// entries that omit one. Ward tabs must name a ward layout file.
func LoadTabs(path string) ([]syncrun.TabConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tabs: %w", err)
	}
	return ParseTabs(data, filepath.Dir(path))
}

// ParseTabs decodes a tab list. baseDir resolves ward layout paths.
func ParseTabs(data []byte, baseDir string) ([]syncrun.TabConfig, error) {
	var file tabsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse tabs: %w", err)
	}
	if len(file.Tabs) == 0 {
		return nil, errors.New("config: no tabs configured")
	}

	seen := make(map[string]bool, len(file.Tabs))
	out := make([]syncrun.TabConfig, 0, len(file.Tabs))
	for i, entry := range file.Tabs {
		tab := entry.TabConfig
		if tab.SourceID == "" {
			tab.SourceID = file.SourceID
		}
		if tab.SourceID == "" || tab.Tab == "" {
			return nil, fmt.Errorf("config: tab %d: source_id and tab are required", i)
		}
		if !tab.Kind.Valid() {
			return nil, fmt.Errorf("config: tab %q: unknown kind %q", tab.Tab, tab.Kind)
		}
		if seen[tab.JobKey()] {
			return nil, fmt.Errorf("config: tab %q listed twice", tab.Tab)
		}
		seen[tab.JobKey()] = true

		if tab.Kind == grid.KindWard {
			if entry.WardLayout == "" {
				return nil, fmt.Errorf("config: ward tab %q needs ward_layout", tab.Tab)
			}
			layoutPath := entry.WardLayout
			if !filepath.IsAbs(layoutPath) {
				layoutPath = filepath.Join(baseDir, layoutPath)
			}
			ward, err := grid.LoadWardLayout(layoutPath)
			if err != nil {
				return nil, fmt.Errorf("config: ward tab %q: %w", tab.Tab, err)
			}
			tab.Layout = &grid.Layout{Kind: grid.KindWard, Year: tab.Year, Ward: ward}
		}
		out = append(out, tab)
	}
	return out, nil
}
