package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rfGrid() RawGrid {
	return RawGrid{
		{"RF 예약표"},
		{"", "1", "2", "3", "1", "2", "3"},
		{"", "2/3(월)", "", "", "2/4(화)", "", ""},
		{"9:00", "홍길동", "", "IN", "", "", ""},
		{"9:30", "", "김철수", "", "W1", "", ""},
		{"10:00", "", "", "", "", "", ""},
		{"", "1", "2", "3"},
		{"", "2/10(월)"},
		{"9:00", "이영희"},
		{"비고", "주차 안내"},
		{"9:30", "무시됨"},
	}
}

func TestScanner_RFBlocks(t *testing.T) {
	sc, err := NewScanner(Layout{Kind: KindRF, Year: 2025})
	require.NoError(t, err)

	blocks := sc.Scan(rfGrid())
	require.Len(t, blocks, 2)

	first := blocks[0]
	assert.Equal(t, 1, first.Marker)
	assert.Equal(t, 3, first.DataStart)
	assert.Equal(t, 5, first.End)
	require.Len(t, first.Groups, 2)
	assert.Equal(t, "2025-02-03", first.Groups[0].Date.Format(DateLayout))
	assert.Equal(t, []Column{{1, "1"}, {2, "2"}, {3, "3"}}, first.Groups[0].Columns)
	assert.Equal(t, "2025-02-04", first.Groups[1].Date.Format(DateLayout))
	assert.Equal(t, 4, first.Groups[1].StartCol)

	second := blocks[1]
	assert.Equal(t, 6, second.Marker)
	assert.Equal(t, 8, second.End, "notes row ends the block")
	require.Len(t, second.Groups, 1)
	assert.Equal(t, "2025-02-10", second.Groups[0].Date.Format(DateLayout))
}

func TestScanner_HeaderWithoutDateDropsBlock(t *testing.T) {
	g := RawGrid{
		{"", "1", "2", "3"},
		{"", "월요일", "", ""},
		{"9:00", "홍길동", "", ""},
		{"", "1", "2", "3"},
		{"", "2/4"},
		{"9:00", "김철수"},
	}
	sc, err := NewScanner(Layout{Kind: KindRF, Year: 2025})
	require.NoError(t, err)

	blocks := sc.Scan(g)
	require.Len(t, blocks, 1)
	assert.Equal(t, 3, blocks[0].Marker)
}

func TestScanner_MonthDividerNeedsMinimumRows(t *testing.T) {
	g := RawGrid{
		{"날짜", "2025-03-03"},
		{"시간", "김치료", "박치료"},
		{"9:00", "A홍길동"},
		{"3월"},
		{"9:30", "B김철수"},
		{"10:00", ""},
		{"10:30", ""},
		{"4월"},
		{"11:00", "다음달"},
	}
	sc, err := NewScanner(Layout{Kind: KindManual, MinDataRows: 3})
	require.NoError(t, err)

	blocks := sc.Scan(g)
	require.Len(t, blocks, 1)
	assert.Equal(t, 2, blocks[0].DataStart)
	assert.Equal(t, 6, blocks[0].End, "early divider is ignored, late divider terminates")
	assert.Equal(t, []Column{{1, "김치료"}, {2, "박치료"}}, blocks[0].Groups[0].Columns)
}

func TestScanner_OutpatientGroups(t *testing.T) {
	g := RawGrid{
		{"시간", "2/2(일)", "", "", "2/3(월)", ""},
		{"", "1번", "2번", "3번", "1", "2"},
		{"09:00", "", "", "1234\n홍길동\n(C)\n45분", "", ""},
	}
	sc, err := NewScanner(Layout{Kind: KindOutpatient, Year: 2025})
	require.NoError(t, err)

	blocks := sc.Scan(g)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Groups, 2)
	assert.Equal(t, []Column{{1, "1"}, {2, "2"}, {3, "3"}}, blocks[0].Groups[0].Columns)
	assert.Equal(t, 2, blocks[0].End)
}

func TestScanner_WardUsesInjectedLayout(t *testing.T) {
	layout, err := ParseWardLayout([]byte(`
version: "2025-01"
columns:
  - {col: 1, bed: A}
  - {col: 2, bed: B}
`))
	require.NoError(t, err)

	g := RawGrid{
		{"병실", "A", "B"},
		{"501", "홍길동", ""},
		{"502", "김철수\n이영희", "LTU"},
	}
	run := time.Date(2025, 2, 3, 15, 30, 0, 0, time.UTC)
	sc, err := NewScanner(Layout{Kind: KindWard, Ward: layout, RunDate: run})
	require.NoError(t, err)

	blocks := sc.Scan(g)
	require.Len(t, blocks, 1)
	assert.Equal(t, 1, blocks[0].DataStart)
	assert.Equal(t, "2025-02-03", blocks[0].Groups[0].Date.Format(DateLayout))
	assert.Equal(t, []Column{{1, "A"}, {2, "B"}}, blocks[0].Groups[0].Columns)
}

func TestWardLayoutValidate(t *testing.T) {
	_, err := ParseWardLayout([]byte(`columns: []`))
	assert.Error(t, err)

	_, err = ParseWardLayout([]byte(`columns: [{col: 1, bed: A}, {col: 1, bed: B}]`))
	assert.ErrorContains(t, err, "duplicate col")

	_, err = ParseWardLayout([]byte(`columns: [{col: 0, bed: A}]`))
	assert.Error(t, err)

	_, err = NewScanner(Layout{Kind: KindWard})
	assert.Error(t, err)
}
