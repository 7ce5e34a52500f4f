package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

const wardYAML = `
version: "v1"
columns:
  - col: 1
    bed: "A"
  - col: 2
    bed: "B"
`

func TestLoadTabs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ward.yaml"), []byte(wardYAML), 0o600))
	tabs := `
source_id: sheet-1
tabs:
  - tab: "도수 2025"
    kind: manual
  - tab: "외래 3월"
    kind: outpatient
    year: 2025
    source_id: sheet-2
  - tab: "입원현황"
    kind: ward
    ward_layout: ward.yaml
`
	path := filepath.Join(dir, "tabs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tabs), 0o600))

	got, err := LoadTabs(path)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "sheet-1", got[0].SourceID)
	assert.Equal(t, grid.KindManual, got[0].Kind)
	assert.Nil(t, got[0].Layout)

	assert.Equal(t, "sheet-2", got[1].SourceID)
	assert.Equal(t, 2025, got[1].Year)

	require.NotNil(t, got[2].Layout)
	assert.Equal(t, grid.KindWard, got[2].Layout.Kind)
	require.NotNil(t, got[2].Layout.Ward)
	assert.Len(t, got[2].Layout.Ward.Columns, 2)
}

func TestParseTabs_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          `tabs: []`,
		"missing source": "tabs:\n  - tab: x\n    kind: rf\n",
		"bad kind":       "source_id: s\ntabs:\n  - tab: x\n    kind: lab\n",
		"duplicate":      "source_id: s\ntabs:\n  - tab: x\n    kind: rf\n  - tab: x\n    kind: rf\n",
		"ward no layout": "source_id: s\ntabs:\n  - tab: w\n    kind: ward\n",
		"ward bad path":  "source_id: s\ntabs:\n  - tab: w\n    kind: ward\n    ward_layout: missing.yaml\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTabs([]byte(data), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestSampleTabsFile(t *testing.T) {
	got, err := LoadTabs(filepath.Join("..", "..", "config", "tabs.yaml"))
	require.NoError(t, err)
	assert.Len(t, got, 4)
}
